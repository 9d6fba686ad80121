package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/mongo-s3-backup/internal/config"
	"github.com/fgeck/mongo-s3-backup/internal/logging"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
	noColor    bool
)

var errNoConfig = errors.New("config file is required (--config)")

var rootCmd = &cobra.Command{
	Use:   "mongo-s3-backup",
	Short: "Back up and restore MongoDB databases to S3-compatible storage",
	Long: `mongo-s3-backup dumps a MongoDB database with mongodump, packs the dump into a
tar.gz archive and uploads it to an S3-compatible bucket. The restore command
reverses the pipeline and loads the archive with mongorestore --drop.

Optional hooks:
  - Wake-on-LAN for the storage host before a run
  - SSH shutdown of the storage host after a successful run
  - Telegram notifications
  - Prometheus metrics written to a node_exporter textfile

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log levels")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	log.Logger = logging.New(logging.Options{
		Out:     os.Stdout,
		JSON:    jsonOutput,
		NoColor: noColor,
	})

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig reads and validates the config file and reports parser warnings.
func loadConfig() (*models.AppConfig, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return nil, errNoConfig
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	for _, w := range parser.Warnings() {
		log.Warn().Str("file", configFile).Msg(w)
	}

	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so that running tools are
// stopped and the run is reported as failed.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, stopping run")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
