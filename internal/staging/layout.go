// Package staging manages the local scratch area used between pipeline steps.
package staging

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Namespace is the directory created under the temp dir that holds all staging data.
const Namespace = "mongo-s3-backup"

// Layout describes the staging paths of one pipeline run.
//
//	<tempDir>/mongo-s3-backup/<database>      dump/restore payload
//	<tempDir>/mongo-s3-backup/<archive name>  compressed artifact
//
// Both are left on disk after a run and removed at the start of the next run
// that touches them.
type Layout struct {
	Root        string
	BackupDir   string
	ArchiveName string
}

// ValidateName rejects database and archive names that are not a single
// path element. Such names would place layout paths outside Root.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q is not a single path element", name)
	}
	return nil
}

// NewLayout computes the layout for database under tempDir.
func NewLayout(tempDir, database, archiveName string) Layout {
	root := filepath.Join(tempDir, Namespace)
	return Layout{
		Root:        root,
		BackupDir:   filepath.Join(root, database),
		ArchiveName: archiveName,
	}
}

// ArchivePath returns the absolute path of the archive file.
func (l Layout) ArchivePath() string {
	return filepath.Join(l.Root, l.ArchiveName)
}
