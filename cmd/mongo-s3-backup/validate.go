package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/objectstore"
	"github.com/fgeck/mongo-s3-backup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var checkRemote bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without executing any backup operations.
With --check-remote the bucket is listed and the SSH shutdown host is contacted.`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&checkRemote, "check-remote", false, "verify bucket access and SSH login")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, cfg)

	if !checkRemote {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Remote checks:")

	archives, err := objectstore.New(log.Logger).List(ctx, cfg.Store, cfg.Mongo.Database)
	if err != nil {
		log.Error().Err(err).Msg("bucket check failed")
		return fmt.Errorf("bucket check failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "  Bucket: reachable, %d archive(s) of %s\n", len(archives), cfg.Mongo.Database)

	if cfg.SSHShutdown != nil {
		if _, err := ssh.New(log.Logger).Check(ctx, *cfg.SSHShutdown); err != nil {
			log.Error().Err(err).Msg("SSH check failed")
			return fmt.Errorf("SSH check failed: %w", err)
		}
		_, _ = fmt.Fprintf(out, "  SSH: login to %s succeeded\n", cfg.SSHShutdown.Host)
	}

	return nil
}

func printSummary(out io.Writer, cfg *models.AppConfig) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(out, format+"\n", a...) }

	p("Configuration is valid!")
	p("")
	p("MongoDB:")
	p("  Address: %s", cfg.Mongo.Address())
	p("  Database: %s", cfg.Mongo.Database)
	p("  Credentials: %v", cfg.Mongo.HasCredentials())
	p("")
	p("Object Store:")
	p("  Bucket: %s", cfg.Store.Bucket)
	p("  Prefix: %s", cfg.Store.Prefix)
	p("  Region: %s", cfg.Store.Region)
	if cfg.Store.Endpoint != "" {
		p("  Endpoint: %s (path style: %v)", cfg.Store.Endpoint, cfg.Store.PathStyle)
	}
	p("")
	p("Staging:")
	p("  Temp dir: %s", cfg.Staging.TempDir)
	if cfg.Archive.Native {
		p("  Archiver: native (gzip level %d)", cfg.Archive.Level)
	} else {
		p("  Archiver: %s", cfg.Tools.Tar)
	}
	p("  Tools: %s, %s", cfg.Tools.Mongodump, cfg.Tools.Mongorestore)
	p("")
	p("Optional Features:")
	p("  Wake-on-LAN: %v", cfg.WOL != nil)
	p("  SSH Shutdown: %v", cfg.SSHShutdown != nil)
	p("  Telegram: %v", cfg.Telegram != nil)
	p("  Metrics textfile: %v", cfg.Metrics.Textfile != "")

	if cfg.WOL != nil {
		p("")
		p("WOL Configuration:")
		p("  MAC Address: %s", cfg.WOL.MACAddress)
		p("  Broadcast IP: %s", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollURL != "" {
			p("  Poll URL: %s", cfg.WOL.PollURL)
		}
	}

	if cfg.SSHShutdown != nil {
		p("")
		p("SSH Shutdown Configuration:")
		p("  Host: %s", cfg.SSHShutdown.Host)
		p("  Port: %d", cfg.SSHShutdown.Port)
		p("  Username: %s", cfg.SSHShutdown.Username)
		p("  OS: %s", cfg.SSHShutdown.OS)
		p("  Shutdown Delay: %d minute(s)", cfg.SSHShutdown.ShutdownDelay)
	}

	if cfg.Telegram != nil {
		p("")
		p("Telegram Configuration:")
		p("  Chat ID: %s", cfg.Telegram.ChatID)
		p("  Bot Token: (configured)")
	}
}
