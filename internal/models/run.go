package models

import "time"

// Pipeline names.
const (
	PipelineBackup  = "backup"
	PipelineRestore = "restore"
)

// RunResult summarises a single pipeline invocation.
type RunResult struct {
	RunID       string
	Pipeline    string
	Database    string
	ArchiveName string
	ArchiveSize int64
	StartTime   time.Time
	Duration    time.Duration
	FailedStep  string // empty on success
	Error       error
}

// Success reports whether every step completed.
func (r *RunResult) Success() bool {
	return r.Error == nil
}
