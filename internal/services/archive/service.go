// Package archive packs staging directories into tar.gz files and unpacks them.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/process"
	"github.com/rs/zerolog"
)

// DefaultTarTool is the archiver executable used when none is configured.
const DefaultTarTool = "tar"

// Service defines the interface for archive operations.
type Service interface {
	// Compress packs inputPath into outputArchive. Entries are stored relative
	// to the parent of inputPath, so the archive unpacks to base(inputPath).
	Compress(ctx context.Context, inputPath, outputArchive string) error
	// Decompress unpacks inputArchive into targetDir.
	Decompress(ctx context.Context, inputArchive, targetDir string) error
}

// New returns the archiver selected by settings.
func New(logger zerolog.Logger, tools models.ToolSettings, settings models.ArchiveSettings) Service {
	if settings.Native {
		return NewNative(logger, settings.Level)
	}
	return NewTar(logger, process.New(logger), tools.Tar)
}

// TarImpl runs the tar executable.
type TarImpl struct {
	runner process.Runner
	logger zerolog.Logger
	tool   string
}

// NewTar creates a tar-backed archiver.
func NewTar(logger zerolog.Logger, runner process.Runner, tool string) *TarImpl {
	if tool == "" {
		tool = DefaultTarTool
	}
	return &TarImpl{runner: runner, logger: logger, tool: tool}
}

// Compress runs `tar -zcf outputArchive <base>` inside the parent of inputPath.
func (s *TarImpl) Compress(ctx context.Context, inputPath, outputArchive string) error {
	s.logger.Info().
		Str("input", inputPath).
		Str("archive", outputArchive).
		Msg("compressing staging directory")

	cmd := process.Command{
		Name: s.tool,
		Args: []string{"-zcf", outputArchive, filepath.Base(inputPath)},
		Dir:  filepath.Dir(inputPath),
	}
	if err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("compress of %s failed: %w", inputPath, err)
	}

	logSize(s.logger, outputArchive)
	return nil
}

// Decompress runs `tar -zxvf inputArchive` inside targetDir.
func (s *TarImpl) Decompress(ctx context.Context, inputArchive, targetDir string) error {
	s.logger.Info().
		Str("archive", inputArchive).
		Str("target", targetDir).
		Msg("decompressing archive")

	cmd := process.Command{
		Name: s.tool,
		Args: []string{"-zxvf", inputArchive},
		Dir:  targetDir,
	}
	if err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("decompress of %s failed: %w", inputArchive, err)
	}

	return nil
}

func logSize(logger zerolog.Logger, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	logger.Info().
		Str("archive", path).
		Str("size", humanize.Bytes(uint64(info.Size()))). //nolint:gosec // sizes are non-negative
		Msg("archive written")
}
