package main

import (
	"github.com/fgeck/mongo-s3-backup/internal/config"
	"github.com/fgeck/mongo-s3-backup/internal/services/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var backupDatabase string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump the database and upload the archive",
	Long: `Execute the backup pipeline:
1. Wake-on-LAN (if configured)
2. Remove the previous dump directory of the database
3. Remove a previous archive with the same name
4. Dump the database with mongodump
5. Pack the dump into <database>_<year>_<month>_<day>_<epochMillis>.tar.gz
6. Upload the archive to the bucket
7. SSH shutdown (if configured)
8. Send Telegram notification and write metrics (if configured)`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupDatabase, "database", "d", "", "database to back up (overrides mongo.database)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if backupDatabase != "" {
		cfg.Mongo.Database = backupDatabase
		if err := config.Validate(cfg); err != nil {
			log.Error().Err(err).Str("database", backupDatabase).Msg("invalid --database override")
			return err
		}
	}

	log.Info().
		Str("config", configFile).
		Str("database", cfg.Mongo.Database).
		Str("bucket", cfg.Store.Bucket).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	result, err := pipeline.New(log.Logger, *cfg).Backup(ctx, cfg.Mongo, cfg.Store)
	if err != nil {
		log.Error().Err(err).Str("database", cfg.Mongo.Database).Msg("backup failed")
		return err
	}

	log.Info().
		Str("archive", result.ArchiveName).
		Dur("duration", result.Duration).
		Msg("backup completed successfully")
	return nil
}
