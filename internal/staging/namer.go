package staging

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ArchiveExt is the extension of every archive produced by the backup pipeline.
const ArchiveExt = ".tar.gz"

var archiveNameRe = regexp.MustCompile(`^(.+)_(\d{4})_(\d{1,2})_(\d{1,2})_(\d+)\.tar\.gz$`)

// Namer derives archive file names from a database name and the current instant.
// Two calls in the same millisecond yield the same name; backups are expected to
// run far less often than that.
type Namer struct {
	now func() time.Time
}

// NewNamer returns a Namer using the wall clock.
func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

// NewNamerWithClock returns a Namer using a custom clock (for testing).
func NewNamerWithClock(now func() time.Time) *Namer {
	return &Namer{now: now}
}

// NameFor returns <database>_<year>_<month>_<day>_<epochMillis>.tar.gz.
// Month and day are not zero padded.
func (n *Namer) NameFor(database string) string {
	t := n.now()
	return fmt.Sprintf("%s_%d_%d_%d_%d%s",
		database, t.Year(), int(t.Month()), t.Day(), t.UnixMilli(), ArchiveExt)
}

// ParseArchiveName splits a name produced by NameFor back into the database
// name and the instant it was taken at.
func ParseArchiveName(name string) (string, time.Time, error) {
	m := archiveNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("not a backup archive name: %q", name)
	}

	millis, err := strconv.ParseInt(m[5], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp in %q: %w", name, err)
	}

	return m[1], time.UnixMilli(millis), nil
}
