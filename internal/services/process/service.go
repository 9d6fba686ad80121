// Package process runs external tools and streams their output to the logger.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/fgeck/mongo-s3-backup/internal/logging"
	"github.com/rs/zerolog"
)

// maxLineSize bounds a single line of child output.
const maxLineSize = 1024 * 1024

// Command describes one invocation of an external executable.
type Command struct {
	Name string
	Args []string
	Dir  string // working directory, empty inherits the caller's
}

// ExitError is returned when a command exits with a non-zero code.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// DefaultRunner runs commands with os/exec. Stdout lines are logged at info
// level and stderr lines at error level while the child is running.
type DefaultRunner struct {
	logger zerolog.Logger
}

// New creates a new DefaultRunner.
func New(logger zerolog.Logger) *DefaultRunner {
	return &DefaultRunner{logger: logger}
}

// Run starts c and waits for it to exit.
func (r *DefaultRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // executable names come from config
	cmd.Dir = c.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout of %s: %w", c.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr of %s: %w", c.Name, err)
	}

	logger := r.logger.With().Str("command", c.Name).Logger()
	logger.Debug().Str("dir", c.Dir).Msg("starting command")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	// Both pipes must be drained before Wait closes them.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(stdout, logger, logging.LevelInfo)
	}()
	go func() {
		defer wg.Done()
		streamLines(stderr, logger, logging.LevelError)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Name: c.Name, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("%s failed: %w", c.Name, err)
	}

	logger.Debug().Msg("command exited with code 0")
	return nil
}

func streamLines(r io.Reader, logger zerolog.Logger, level logging.Level) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		logging.Log(logger, scanner.Text(), level)
	}

	if err := scanner.Err(); err != nil {
		logger.Debug().Err(err).Msg("stopped reading command output")
		_, _ = io.Copy(io.Discard, r)
	}
}
