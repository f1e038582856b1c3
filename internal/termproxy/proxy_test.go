package termproxy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureRCFileCreatesOnceAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if err := EnsureRCFile(root); err != nil {
		t.Fatalf("EnsureRCFile: %v", err)
	}
	path := filepath.Join(root, ".sandbox-shell-rc")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected rc file to exist: %v", err)
	}
	firstModTime := info.ModTime()

	if err := EnsureRCFile(root); err != nil {
		t.Fatalf("second EnsureRCFile: %v", err)
	}
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after second call: %v", err)
	}
	if !info2.ModTime().Equal(firstModTime) {
		t.Fatalf("expected EnsureRCFile to be a no-op when the file already exists")
	}
}

func TestNewBuildsProxyWithoutSpawning(t *testing.T) {
	p := New(t.TempDir(), nil)
	if p == nil {
		t.Fatalf("expected non-nil Proxy")
	}
	if p.respawns.Load() != 0 {
		t.Fatalf("expected zero respawn count before Run")
	}
}
