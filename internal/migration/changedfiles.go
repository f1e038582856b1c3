package migration

import (
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// excludedPrefixes lists subtrees never considered part of the user's
// delta (spec §4.11 "Change tracking"): virtual filesystems, caches,
// and regenerable per-language dependency directories.
func excludedPrefixes(root string) []string {
	return []string{
		"/proc",
		"/sys",
		"/dev",
		"/run",
		"/tmp",
		"/var/cache/apt",
		"/var/lib/apt/lists",
		"/var/lib/dpkg",
		filepath.Join(root, "js-ts", "node_modules"),
		filepath.Join(root, "py", "venv"),
	}
}

func isExcluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ChangedFile describes one file that changed since the startup
// marker: its path and its size for the manifest. Permissions are not
// kept here; buildTarball reads them again from the file.
type ChangedFile struct {
	Path string
	Size int64
}

// FindChangedFiles walks the root filesystem ("/") and returns every
// regular file on the same device as "/", with an mtime strictly
// after markerTime, excluding the subtrees named in excludedPrefixes
// (spec §4.11). sandboxRoot is R, used to compute the regenerable
// per-language exclusions.
func FindChangedFiles(sandboxRoot string, markerTime time.Time) ([]ChangedFile, error) {
	rootDev, err := deviceOf("/")
	if err != nil {
		return nil, err
	}
	prefixes := excludedPrefixes(sandboxRoot)

	var out []ChangedFile
	err = filepath.WalkDir("/", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries (permission, transient removal) are
			// skipped rather than aborting the whole walk.
			return nil
		}
		if d.IsDir() {
			if isExcluded(path, prefixes) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if isExcluded(path, prefixes) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !markerTime.IsZero() && !info.ModTime().After(markerTime) {
			return nil
		}

		dev, err := deviceOf(path)
		if err != nil || dev != rootDev {
			return nil
		}

		out = append(out, ChangedFile{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func deviceOf(path string) (uint64, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}

// totalSize sums the sizes of a ChangedFile slice.
func totalSize(files []ChangedFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// paths extracts the Path field from a ChangedFile slice.
func paths(files []ChangedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
