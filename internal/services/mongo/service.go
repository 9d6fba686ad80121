// Package mongo drives mongodump and mongorestore.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/process"
	"github.com/rs/zerolog"
)

// Default executable names.
const (
	DefaultDumpTool    = "mongodump"
	DefaultRestoreTool = "mongorestore"
)

// Service defines the interface for database dump and restore operations.
type Service interface {
	Dump(ctx context.Context, cfg models.MongoConfig, outputDir string) error
	// Restore drops every collection it restores before loading it.
	Restore(ctx context.Context, cfg models.MongoConfig, backupDir string) error
}

// Impl implements the mongo Service interface.
type Impl struct {
	runner      process.Runner
	logger      zerolog.Logger
	dumpTool    string
	restoreTool string
}

// New creates a new mongo service running the configured tools.
func New(logger zerolog.Logger, tools models.ToolSettings) *Impl {
	return NewWithRunner(logger, process.New(logger), tools)
}

// NewWithRunner creates a new mongo service with a custom runner (for testing).
func NewWithRunner(logger zerolog.Logger, runner process.Runner, tools models.ToolSettings) *Impl {
	dumpTool := tools.Mongodump
	if dumpTool == "" {
		dumpTool = DefaultDumpTool
	}
	restoreTool := tools.Mongorestore
	if restoreTool == "" {
		restoreTool = DefaultRestoreTool
	}

	return &Impl{
		runner:      runner,
		logger:      logger,
		dumpTool:    dumpTool,
		restoreTool: restoreTool,
	}
}

// Dump writes the database to outputDir/<database>.
func (s *Impl) Dump(ctx context.Context, cfg models.MongoConfig, outputDir string) error {
	s.logger.Info().
		Str("host", cfg.Address()).
		Str("database", cfg.Database).
		Str("output", outputDir).
		Bool("auth", cfg.HasCredentials()).
		Msg("starting database dump")

	start := time.Now()
	if err := s.runner.Run(ctx, process.Command{Name: s.dumpTool, Args: DumpArgs(cfg, outputDir)}); err != nil {
		return fmt.Errorf("dump of %s failed: %w", cfg.Database, err)
	}

	s.logger.Info().
		Str("database", cfg.Database).
		Dur("duration", time.Since(start)).
		Msg("database dump completed")

	return nil
}

// Restore loads backupDir into the database with --drop, replacing existing collections.
func (s *Impl) Restore(ctx context.Context, cfg models.MongoConfig, backupDir string) error {
	s.logger.Warn().
		Str("host", cfg.Address()).
		Str("database", cfg.Database).
		Str("input", backupDir).
		Msg("starting database restore, existing collections will be dropped")

	start := time.Now()
	if err := s.runner.Run(ctx, process.Command{Name: s.restoreTool, Args: RestoreArgs(cfg, backupDir)}); err != nil {
		return fmt.Errorf("restore of %s failed: %w", cfg.Database, err)
	}

	s.logger.Info().
		Str("database", cfg.Database).
		Dur("duration", time.Since(start)).
		Msg("database restore completed")

	return nil
}

// DumpArgs builds: -h host:port -d database -o outputDir [-u user -p password].
func DumpArgs(cfg models.MongoConfig, outputDir string) []string {
	args := []string{
		"-h", cfg.Address(),
		"-d", cfg.Database,
		"-o", outputDir,
	}
	return append(args, credentialArgs(cfg)...)
}

// RestoreArgs builds: -h host:port -d database --drop backupDir [-u user -p password].
func RestoreArgs(cfg models.MongoConfig, backupDir string) []string {
	args := []string{
		"-h", cfg.Address(),
		"-d", cfg.Database,
		"--drop", backupDir,
	}
	return append(args, credentialArgs(cfg)...)
}

func credentialArgs(cfg models.MongoConfig) []string {
	if !cfg.HasCredentials() {
		return nil
	}
	return []string{"-u", cfg.Username, "-p", cfg.Password}
}
