// Package pipeline runs the backup and restore pipelines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/mongo-s3-backup/internal/logging"
	"github.com/fgeck/mongo-s3-backup/internal/metrics"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/archive"
	"github.com/fgeck/mongo-s3-backup/internal/services/mongo"
	"github.com/fgeck/mongo-s3-backup/internal/services/objectstore"
	"github.com/fgeck/mongo-s3-backup/internal/services/ssh"
	"github.com/fgeck/mongo-s3-backup/internal/services/telegram"
	"github.com/fgeck/mongo-s3-backup/internal/services/wol"
	"github.com/fgeck/mongo-s3-backup/internal/staging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const notifyTimeout = 30 * time.Second

// Service defines the interface for the pipeline orchestrator.
type Service interface {
	Backup(ctx context.Context, db models.MongoConfig, store models.StoreConfig) (*models.RunResult, error)
	Restore(ctx context.Context, db models.MongoConfig, store models.StoreConfig, remoteArchive string) (*models.RunResult, error)
}

// Cleaner removes staging paths.
type Cleaner interface {
	RemoveTree(path string) error
}

// Namer derives archive names.
type Namer interface {
	NameFor(database string) string
}

// Services bundles the collaborators of the orchestrator.
type Services struct {
	Mongo    mongo.Service
	Archive  archive.Service
	Store    objectstore.Service
	WOL      wol.Service
	SSH      ssh.Service
	Telegram telegram.Service
	Cleaner  Cleaner
	Namer    Namer
	Metrics  *metrics.Recorder
}

// Hooks are the optional steps and reports around every run.
type Hooks struct {
	WOL             *models.WOLConfig
	SSHShutdown     *models.SSHShutdownConfig
	Telegram        *models.TelegramConfig
	MetricsTextfile string
}

// Impl implements the pipeline Service interface.
type Impl struct {
	svc     Services
	hooks   Hooks
	tempDir string
	logger  zerolog.Logger
}

// New creates a pipeline orchestrator wired to the real tools and clients.
func New(logger zerolog.Logger, cfg models.AppConfig) *Impl {
	tempDir := cfg.Staging.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return NewWithServices(logger, Services{
		Mongo:    mongo.New(logger, cfg.Tools),
		Archive:  archive.New(logger, cfg.Tools, cfg.Archive),
		Store:    objectstore.New(logger),
		WOL:      wol.New(logger),
		SSH:      ssh.New(logger),
		Telegram: telegram.New(logger),
		Cleaner:  staging.NewCleaner(logger),
		Namer:    staging.NewNamer(),
		Metrics:  metrics.NewRecorder(),
	}, Hooks{
		WOL:             cfg.WOL,
		SSHShutdown:     cfg.SSHShutdown,
		Telegram:        cfg.Telegram,
		MetricsTextfile: cfg.Metrics.Textfile,
	}, tempDir)
}

// NewWithServices creates a pipeline orchestrator with custom services (for testing).
func NewWithServices(logger zerolog.Logger, svc Services, hooks Hooks, tempDir string) *Impl {
	if svc.Metrics == nil {
		svc.Metrics = metrics.NewRecorder()
	}
	return &Impl{
		svc:     svc,
		hooks:   hooks,
		tempDir: tempDir,
		logger:  logger,
	}
}

// Metrics returns the recorder the orchestrator reports to.
func (s *Impl) Metrics() *metrics.Recorder {
	return s.svc.Metrics
}

// Backup dumps db, archives the dump and uploads the archive to store.
func (s *Impl) Backup(ctx context.Context, db models.MongoConfig, store models.StoreConfig) (*models.RunResult, error) {
	archiveName := s.svc.Namer.NameFor(db.Database)
	layout := staging.NewLayout(s.tempDir, db.Database, archiveName)
	result, logger := s.begin(models.PipelineBackup, db.Database, archiveName)

	if err := staging.ValidateName(db.Database); err != nil {
		return s.reject(ctx, logger, result, store, fmt.Errorf("invalid database name: %w", err))
	}

	logger.Info().
		Str("archive", archiveName).
		Str("staging", layout.Root).
		Str("bucket", store.Bucket).
		Msg("starting backup")

	steps := []Step{
		{Name: StepCleanBackupDir, Run: func(context.Context) error {
			return s.svc.Cleaner.RemoveTree(layout.BackupDir)
		}},
		{Name: StepCleanArchive, Run: func(context.Context) error {
			return s.svc.Cleaner.RemoveTree(layout.ArchivePath())
		}},
		{Name: StepDump, Run: func(ctx context.Context) error {
			return s.svc.Mongo.Dump(ctx, db, layout.Root)
		}},
		{Name: StepCompress, Run: func(ctx context.Context) error {
			if err := s.svc.Archive.Compress(ctx, layout.BackupDir, layout.ArchivePath()); err != nil {
				return err
			}
			result.ArchiveSize = fileSize(layout.ArchivePath())
			return nil
		}},
		{Name: StepUpload, Run: func(ctx context.Context) error {
			return s.svc.Store.Upload(ctx, store, layout.Root, archiveName)
		}},
	}

	return s.execute(ctx, logger, result, store, s.withHooks(store, steps))
}

// Restore downloads remoteArchive from store, unpacks it and restores db
// from it. Collections present in the archive are dropped before they are
// restored.
func (s *Impl) Restore(
	ctx context.Context,
	db models.MongoConfig,
	store models.StoreConfig,
	remoteArchive string,
) (*models.RunResult, error) {
	archiveName := path.Base(remoteArchive)
	result, logger := s.begin(models.PipelineRestore, db.Database, archiveName)

	if err := staging.ValidateName(db.Database); err != nil {
		return s.reject(ctx, logger, result, store, fmt.Errorf("invalid database name: %w", err))
	}
	if remoteArchive == "" {
		return s.reject(ctx, logger, result, store, errors.New("invalid archive name: empty"))
	}
	if err := staging.ValidateName(archiveName); err != nil {
		return s.reject(ctx, logger, result, store, fmt.Errorf("invalid archive name %q: %w", remoteArchive, err))
	}

	layout := staging.NewLayout(s.tempDir, db.Database, archiveName)

	logger.Info().
		Str("archive", remoteArchive).
		Str("staging", layout.Root).
		Str("bucket", store.Bucket).
		Msg("starting restore")

	steps := []Step{
		{Name: StepCleanStaging, Run: func(context.Context) error {
			return s.svc.Cleaner.RemoveTree(layout.Root)
		}},
		{Name: StepDownload, Run: func(ctx context.Context) error {
			if err := s.svc.Store.Download(ctx, store, remoteArchive, layout.ArchivePath()); err != nil {
				return err
			}
			result.ArchiveSize = fileSize(layout.ArchivePath())
			return nil
		}},
		{Name: StepDecompress, Run: func(ctx context.Context) error {
			return s.svc.Archive.Decompress(ctx, layout.ArchivePath(), layout.Root)
		}},
		{Name: StepRestore, Run: func(ctx context.Context) error {
			return s.svc.Mongo.Restore(ctx, db, layout.BackupDir)
		}},
	}

	return s.execute(ctx, logger, result, store, s.withHooks(store, steps))
}

func (s *Impl) begin(pipeline, database, archiveName string) (*models.RunResult, zerolog.Logger) {
	result := &models.RunResult{
		RunID:       uuid.NewString(),
		Pipeline:    pipeline,
		Database:    database,
		ArchiveName: archiveName,
		StartTime:   time.Now(),
	}

	logger := s.logger.With().
		Str("run_id", result.RunID).
		Str("pipeline", pipeline).
		Str("database", database).
		Logger()

	return result, logger
}

// withHooks wraps steps with the optional wake and shutdown steps.
func (s *Impl) withHooks(store models.StoreConfig, steps []Step) []Step {
	all := make([]Step, 0, len(steps)+2)

	if s.hooks.WOL != nil {
		cfg := *s.hooks.WOL
		if cfg.PollURL == "" {
			cfg.PollURL = store.Endpoint
		}
		all = append(all, Step{Name: StepWake, Run: func(ctx context.Context) error {
			_, err := s.svc.WOL.Wake(ctx, cfg)
			return err
		}})
	}

	all = append(all, steps...)

	if s.hooks.SSHShutdown != nil {
		cfg := *s.hooks.SSHShutdown
		all = append(all, Step{Name: StepShutdown, Run: func(ctx context.Context) error {
			_, err := s.svc.SSH.Shutdown(ctx, cfg)
			return err
		}})
	}

	return all
}

func (s *Impl) execute(
	ctx context.Context,
	logger zerolog.Logger,
	result *models.RunResult,
	store models.StoreConfig,
	steps []Step,
) (*models.RunResult, error) {
	err := runSteps(ctx, logger, result.Pipeline, steps, func(step string, d time.Duration) {
		s.svc.Metrics.ObserveStep(result.Pipeline, step, d)
	})
	result.Duration = time.Since(result.StartTime)

	if err != nil {
		result.Error = err
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			result.FailedStep = stepErr.Step
		}
	} else {
		logger.Info().
			Str("archive", result.ArchiveName).
			Str("size", humanize.Bytes(uint64(result.ArchiveSize))). //nolint:gosec // sizes are non-negative
			Dur("duration", result.Duration).
			Msgf("%s of database %s completed successfully", result.Pipeline, result.Database)
	}

	s.report(ctx, logger, result, store)
	return result, err
}

// reject ends a run that failed before its first step. It is logged and
// reported like any other failed run.
func (s *Impl) reject(
	ctx context.Context,
	logger zerolog.Logger,
	result *models.RunResult,
	store models.StoreConfig,
	err error,
) (*models.RunResult, error) {
	result.Error = err
	result.Duration = time.Since(result.StartTime)
	logging.Log(logger, fmt.Sprintf("%s rejected: %v", result.Pipeline, err), logging.LevelError)

	s.report(ctx, logger, result, store)
	return result, err
}

// report records metrics and sends the notification. Failures here are
// logged and never change the outcome of the run.
func (s *Impl) report(ctx context.Context, logger zerolog.Logger, result *models.RunResult, store models.StoreConfig) {
	s.svc.Metrics.ObserveRun(result)
	if s.hooks.MetricsTextfile != "" {
		if err := s.svc.Metrics.WriteTextfile(s.hooks.MetricsTextfile); err != nil {
			logger.Warn().Err(err).Str("path", s.hooks.MetricsTextfile).Msg("failed to write metrics")
		}
	}

	if s.hooks.Telegram == nil {
		return
	}

	msg := models.TelegramMessage{
		Success:     result.Success(),
		Pipeline:    result.Pipeline,
		Database:    result.Database,
		Bucket:      store.Bucket,
		ArchiveName: result.ArchiveName,
		ArchiveSize: result.ArchiveSize,
		StartTime:   result.StartTime,
		Duration:    result.Duration,
		FailedStep:  result.FailedStep,
	}
	if result.Error != nil {
		msg.ErrorMessage = result.Error.Error()
	}

	// An interrupted run is still reported.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.svc.Telegram.Notify(notifyCtx, *s.hooks.Telegram, msg); err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
	}
}

func fileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return info.Size()
}
