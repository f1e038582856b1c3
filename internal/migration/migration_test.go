package migration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreFromClient(client)
}

func TestStoreGetMissingKeyReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSetThenGetRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, KeyManifest, []byte(`{"version":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, KeyManifest)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"version":1}` {
		t.Fatalf("got %q", got)
	}
}

func TestParseAptInstallLine(t *testing.T) {
	line := "Install: vim-common:amd64 (2:8.2.3995-1ubuntu2), vim:amd64 (2:8.2.3995-1ubuntu2, automatic)"
	got := parseAptInstallLine(line)
	want := []string{"vim-common", "vim"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExcludedPrefixesCoverNodeModulesAndVenv(t *testing.T) {
	root := t.TempDir()
	sandboxRoot := filepath.Join(root, "sandbox")
	nodeModules := filepath.Join(sandboxRoot, "js-ts", "node_modules")
	venv := filepath.Join(sandboxRoot, "py", "venv")
	if err := os.MkdirAll(nodeModules, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(venv, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nodeModules, "dep.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(venv, "lib.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	prefixes := excludedPrefixes(sandboxRoot)
	if !isExcluded(filepath.Join(nodeModules, "dep.js"), prefixes) {
		t.Fatalf("expected node_modules path to be excluded")
	}
	if !isExcluded(filepath.Join(venv, "lib.py"), prefixes) {
		t.Fatalf("expected venv path to be excluded")
	}
}

func TestBuildTarballEmptyFileSetProducesEmptyBytes(t *testing.T) {
	data, err := buildTarball(nil)
	if err != nil {
		t.Fatalf("buildTarball: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty tarball for empty file set, got %d bytes", len(data))
	}
}

func TestBuildTarballThenExtractRoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "restored-file.txt")
	if err := os.WriteFile(src, []byte("hello migration"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := buildTarball([]ChangedFile{{Path: src, Size: 15}})
	if err != nil {
		t.Fatalf("buildTarball: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty tarball")
	}

	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}

	if err := extractTarball(data); err != nil {
		t.Fatalf("extractTarball: %v", err)
	}
	got, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("expected file restored at original absolute path: %v", err)
	}
	if string(got) != "hello migration" {
		t.Fatalf("got %q", got)
	}
}

func TestRestoreWithNoManifestReturnsFalseNotError(t *testing.T) {
	store := newTestStore(t)
	restorer := NewRestorer(t.TempDir(), t.TempDir(), nil, store)
	restored, err := restorer.Restore(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if restored {
		t.Fatalf("expected no restore when manifest is absent")
	}
}

func TestRestoreShortCircuitsExtractionWhenChangedFilesCountIsZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	manifest := Manifest{Version: ManifestVersion, CreatedAt: time.Now()}
	b, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, KeyManifest, b); err != nil {
		t.Fatal(err)
	}

	restorer := NewRestorer(t.TempDir(), t.TempDir(), nil, store)
	restored, err := restorer.Restore(ctx)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !restored {
		t.Fatalf("expected restore to report true even with an empty changed-file set")
	}
}

func TestWriteMarkerThenMarkerTimeRoundTrips(t *testing.T) {
	at := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := WriteMarker(at); err != nil {
		t.Fatalf("WriteMarker: %v", err)
	}
	got := MarkerTime()
	if !got.Equal(at) {
		t.Fatalf("MarkerTime() = %v, want %v", got, at)
	}
}
