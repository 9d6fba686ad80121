package staging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestNewLayout(t *testing.T) {
	layout := NewLayout("/tmp", "app", "app_2024_3_7_1709800000000.tar.gz")

	assert.Equal(t, filepath.Join("/tmp", Namespace), layout.Root)
	assert.Equal(t, filepath.Join("/tmp", Namespace, "app"), layout.BackupDir)
	assert.Equal(t, filepath.Join("/tmp", Namespace, "app_2024_3_7_1709800000000.tar.gz"), layout.ArchivePath())
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"app", "app_2024_3_7_1709800000000.tar.gz", "my-db"} {
		assert.NoError(t, ValidateName(name), name)
	}

	for _, name := range []string{"", ".", "..", "a/b", "../app", `a\b`, "/"} {
		err := ValidateName(name)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "not a single path element")
	}
}

func TestNamer_NameFor_Format(t *testing.T) {
	fixed := time.Date(2024, time.March, 7, 9, 30, 0, 0, time.Local)
	namer := NewNamerWithClock(func() time.Time { return fixed })

	name := namer.NameFor("app")

	assert.Equal(t, "app_2024_3_7_"+strconv.FormatInt(fixed.UnixMilli(), 10)+".tar.gz", name)
}

func TestNamer_NameFor_PrefixAndSuffix(t *testing.T) {
	namer := NewNamer()

	for _, db := range []string{"app", "my_db", "x"} {
		name := namer.NameFor(db)
		assert.True(t, strings.HasPrefix(name, db+"_"), name)
		assert.True(t, strings.HasSuffix(name, ArchiveExt), name)
	}
}

func TestNamer_NameFor_DistinctAcrossMilliseconds(t *testing.T) {
	current := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.Local)
	namer := NewNamerWithClock(func() time.Time {
		current = current.Add(time.Millisecond)
		return current
	})

	first := namer.NameFor("app")
	second := namer.NameFor("app")

	assert.NotEqual(t, first, second)
}

func TestParseArchiveName_RoundTrip(t *testing.T) {
	fixed := time.Date(2025, time.January, 2, 3, 4, 5, 6_000_000, time.Local)
	namer := NewNamerWithClock(func() time.Time { return fixed })

	db, at, err := ParseArchiveName(namer.NameFor("orders_db"))

	require.NoError(t, err)
	assert.Equal(t, "orders_db", db)
	assert.Equal(t, fixed.UnixMilli(), at.UnixMilli())
}

func TestParseArchiveName_Invalid(t *testing.T) {
	for _, name := range []string{"", "app.tar.gz", "app_2024_3_7.tar.gz", "app_2024_3_7_123.zip"} {
		_, _, err := ParseArchiveName(name)
		assert.Error(t, err, name)
	}
}

func TestCleaner_RemoveTree_MissingPath(t *testing.T) {
	called := false
	cleaner := NewCleaner(testLogger())
	cleaner.remove = func(string) error {
		called = true
		return nil
	}

	err := cleaner.RemoveTree(filepath.Join(t.TempDir(), "does-not-exist"))

	assert.NoError(t, err)
	assert.False(t, called, "removal must not run for a missing path")
}

func TestCleaner_RemoveTree_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "users.bson"), []byte("data"), 0o600))

	cleaner := NewCleaner(testLogger())

	require.NoError(t, cleaner.RemoveTree(dir))
	assert.NoDirExists(t, dir)

	// Second call on the now-missing path still succeeds.
	require.NoError(t, cleaner.RemoveTree(dir))
}

func TestCleaner_RemoveTree_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app_2024_1_1_1.tar.gz")
	require.NoError(t, os.WriteFile(file, []byte("archive"), 0o600))

	cleaner := NewCleaner(testLogger())

	require.NoError(t, cleaner.RemoveTree(file))
	assert.NoFileExists(t, file)
}

func TestCleaner_RemoveTree_Error(t *testing.T) {
	dir := t.TempDir()
	cleaner := NewCleaner(testLogger())
	cleaner.remove = func(string) error {
		return errors.New("permission denied")
	}

	err := cleaner.RemoveTree(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), dir)
}
