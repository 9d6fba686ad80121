package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/logging"
	"github.com/rs/zerolog"
)

// Step names.
const (
	StepWake           = "wake"
	StepCleanBackupDir = "clean-backup-dir"
	StepCleanArchive   = "clean-archive"
	StepDump           = "dump"
	StepCompress       = "compress"
	StepUpload         = "upload"
	StepCleanStaging   = "clean-staging"
	StepDownload       = "download"
	StepDecompress     = "decompress"
	StepRestore        = "restore"
	StepShutdown       = "shutdown"
)

// Step is one stage of a pipeline. Steps run strictly in order and a step
// only starts after the previous one returned nil.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports the first failing step of a run.
type StepError struct {
	Pipeline string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at step %s: %v", e.Pipeline, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// stepObserver receives the duration of every executed step.
type stepObserver func(step string, d time.Duration)

// runSteps executes steps in order and stops at the first error.
func runSteps(ctx context.Context, logger zerolog.Logger, pipeline string, steps []Step, observe stepObserver) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return fail(logger, pipeline, step.Name, err)
		}

		logger.Debug().
			Str("step", step.Name).
			Int("position", i+1).
			Int("total", len(steps)).
			Msg("running step")

		start := time.Now()
		err := step.Run(ctx)
		if observe != nil {
			observe(step.Name, time.Since(start))
		}
		if err != nil {
			return fail(logger, pipeline, step.Name, err)
		}
	}
	return nil
}

func fail(logger zerolog.Logger, pipeline, step string, err error) *StepError {
	stepErr := &StepError{Pipeline: pipeline, Step: step, Err: err}
	logging.Log(logger, stepErr.Error(), logging.LevelError)
	return stepErr
}
