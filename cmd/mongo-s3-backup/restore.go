package main

import (
	"path"

	"github.com/fgeck/mongo-s3-backup/internal/config"
	"github.com/fgeck/mongo-s3-backup/internal/services/pipeline"
	"github.com/fgeck/mongo-s3-backup/internal/staging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var restoreDatabase string

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Download an archive and restore it into the database",
	Long: `Execute the restore pipeline:
1. Wake-on-LAN (if configured)
2. Remove the local staging directory
3. Download <archive> from the bucket (relative to store.prefix)
4. Unpack the archive
5. Restore with mongorestore --drop

WARNING: every collection contained in the archive is dropped before it is
restored. Use the list command to find archive names.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreDatabase, "database", "d", "", "database to restore into (overrides mongo.database)")
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if restoreDatabase != "" {
		cfg.Mongo.Database = restoreDatabase
		if err := config.Validate(cfg); err != nil {
			log.Error().Err(err).Str("database", restoreDatabase).Msg("invalid --database override")
			return err
		}
	}

	archive := args[0]
	if db, _, err := staging.ParseArchiveName(path.Base(archive)); err == nil && db != cfg.Mongo.Database {
		log.Warn().
			Str("archive_database", db).
			Str("database", cfg.Mongo.Database).
			Msg("archive was taken from a different database; the restore will find no dump for the target")
	}

	log.Info().
		Str("config", configFile).
		Str("database", cfg.Mongo.Database).
		Str("archive", archive).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	result, err := pipeline.New(log.Logger, *cfg).Restore(ctx, cfg.Mongo, cfg.Store, archive)
	if err != nil {
		log.Error().Err(err).Str("archive", archive).Msg("restore failed")
		return err
	}

	log.Info().
		Str("archive", result.ArchiveName).
		Dur("duration", result.Duration).
		Msg("restore completed successfully")
	return nil
}
