// Package models contains the data structures used throughout mongo-s3-backup.
package models

// AppConfig holds the complete configuration for a backup or restore run.
type AppConfig struct {
	Mongo       MongoConfig
	Store       StoreConfig
	Staging     StagingSettings
	Tools       ToolSettings
	Archive     ArchiveSettings
	Metrics     MetricsSettings
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
	Telegram    *TelegramConfig    // nil if not configured
}

// StagingSettings controls where local scratch data is written.
type StagingSettings struct {
	TempDir string // parent of the staging root, defaults to os.TempDir()
}

// ToolSettings names the external executables. Values may be bare names
// resolved through PATH or absolute paths.
type ToolSettings struct {
	Mongodump    string
	Mongorestore string
	Tar          string
}

// ArchiveSettings selects how archives are built.
type ArchiveSettings struct {
	Native bool // build tar.gz in-process instead of running tar
	Level  int  // gzip level for the native archiver
}

// MetricsSettings controls the Prometheus textfile output.
type MetricsSettings struct {
	Textfile string // empty disables the textfile
}
