package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
)

// Cleaner removes staging paths before a step writes to them.
type Cleaner struct {
	logger zerolog.Logger
	remove func(path string) error
}

// NewCleaner creates a new Cleaner.
func NewCleaner(logger zerolog.Logger) *Cleaner {
	return &Cleaner{logger: logger, remove: os.RemoveAll}
}

// RemoveTree removes path recursively, whether it is a file or a directory.
// A missing path is not an error.
func (c *Cleaner) RemoveTree(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	c.logger.Warn().Str("path", path).Msg("removing existing staging path")

	if err := c.remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
