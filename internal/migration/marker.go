package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// markerFileName is the zero-byte sentinel written at the end of
// startup, restored or not (spec §4.11 "Change tracking").
const markerFileName = "sandbox-migration-marker"

func markerPath() string {
	return filepath.Join(os.TempDir(), markerFileName)
}

// WriteMarker (re)creates the startup marker with the given mtime.
// SPEC_FULL.md resolves the §9 open question on marker lifetime as
// option (a): the marker is always recreated at the end of a
// successful startup, including after a restore, using a timestamp
// that predates tarball extraction so restored files stay in the next
// checkpoint's delta.
func WriteMarker(at time.Time) error {
	p := markerPath()
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		return fmt.Errorf("failed to write startup marker: %w", err)
	}
	return os.Chtimes(p, at, at)
}

// MarkerTime returns the mtime of the startup marker, or the zero
// time if it does not exist (treated by callers as "snapshot
// everything").
func MarkerTime() time.Time {
	info, err := os.Stat(markerPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
