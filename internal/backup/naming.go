// Package backup implements the host-scoped backup engines on top of the
// drive client: recursive tree upload, time-based retention deletion, and
// latest-set restore. Payload blobs are opaque — only names and timestamps
// are ever interpreted.
package backup

import (
	"os"
	"strings"
	"time"
)

// Marker suffixes distinguishing a baseline archive from subsequent delta
// archives. Produced upstream by the archive pipeline; consumed here only
// as opaque name suffixes during restore selection.
const (
	FullSuffix        = ".full.bkp"
	IncrementalSuffix = ".inc.bkp"
)

// dateLayout names one backup set per day.
const dateLayout = "2006-01-02"

// HostFolder returns the per-host folder name for this machine.
func HostFolder() (string, error) {
	return os.Hostname()
}

// DateFolder returns the per-date folder name for the given instant in UTC.
func DateFolder(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// IsFullMarker reports whether name carries the full-backup suffix.
func IsFullMarker(name string) bool {
	return strings.HasSuffix(name, FullSuffix)
}
