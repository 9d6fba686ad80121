package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// NativeImpl writes and reads tar.gz archives in-process. Archives are
// interchangeable with the ones produced by TarImpl.
type NativeImpl struct {
	logger zerolog.Logger
	level  int
}

// NewNative creates an in-process archiver. Level 0 selects the gzip default.
func NewNative(logger zerolog.Logger, level int) *NativeImpl {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &NativeImpl{logger: logger, level: level}
}

// Compress packs inputPath into outputArchive.
func (s *NativeImpl) Compress(ctx context.Context, inputPath, outputArchive string) (err error) {
	s.logger.Info().
		Str("input", inputPath).
		Str("archive", outputArchive).
		Msg("compressing staging directory")

	out, err := os.Create(outputArchive) //nolint:gosec // path is built from the staging layout
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	gz, err := gzip.NewWriterLevel(out, s.level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	base := filepath.Dir(inputPath)
	walkErr := filepath.WalkDir(inputPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.addEntry(tw, base, path, d)
	})
	if walkErr != nil {
		return fmt.Errorf("compress of %s failed: %w", inputPath, walkErr)
	}

	// Close in order: tar, then gzip, then the file (deferred).
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	logSize(s.logger, outputArchive)
	return nil
}

func (s *NativeImpl) addEntry(tw *tar.Writer, base, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // walking our own staging tree
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(tw, f)
	return err
}

// Decompress unpacks inputArchive into targetDir.
func (s *NativeImpl) Decompress(ctx context.Context, inputArchive, targetDir string) error {
	s.logger.Info().
		Str("archive", inputArchive).
		Str("target", targetDir).
		Msg("decompressing archive")

	in, err := os.Open(inputArchive) //nolint:gosec // path is built from the staging layout
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = in.Close() }()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("decompress of %s failed: %w", inputArchive, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decompress of %s failed: %w", inputArchive, err)
		}

		if err := s.extractEntry(tr, header, targetDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}
	}
}

func (s *NativeImpl) extractEntry(tr *tar.Reader, header *tar.Header, targetDir string) error {
	target, err := safeJoin(targetDir, header.Name)
	if err != nil {
		return err
	}
	if err := checkNoSymlink(targetDir, target); err != nil {
		return err
	}

	s.logger.Debug().Str("entry", header.Name).Msg("extracting")

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, header.FileInfo().Mode().Perm()|0o700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm()) //nolint:gosec // target checked by safeJoin
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // archives are our own backups
			_ = f.Close()
			return err
		}
		return f.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		return os.Symlink(header.Linkname, target)
	default:
		s.logger.Debug().Str("entry", header.Name).Msg("skipping unsupported entry type")
		return nil
	}
}

// safeJoin joins name onto dir, rejecting entries that would escape dir.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if target != filepath.Clean(dir) && !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes target directory", name)
	}
	return target, nil
}

// checkNoSymlink rejects targets whose path below dir passes through an
// existing symlink, including target itself.
func checkNoSymlink(dir, target string) error {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}

	current := filepath.Clean(dir)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("entry path %s passes through symlink %s", target, current)
		}
	}
	return nil
}
