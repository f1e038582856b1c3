package migration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/apify/actor-sandbox/internal/procexec"
)

// Checkpointer implements the checkpoint half of C11: on a platform
// "migrating" signal, snapshot the user's delta to the external K/V
// store (spec §4.11 "Checkpoint procedure").
type Checkpointer struct {
	Root    string
	VenvDir string
	Runner  *procexec.Runner
	Store   Store
	RunID   string
}

// NewCheckpointer builds a Checkpointer rooted at sandboxRoot.
func NewCheckpointer(sandboxRoot, venvDir string, runner *procexec.Runner, store Store, runID string) *Checkpointer {
	return &Checkpointer{Root: sandboxRoot, VenvDir: venvDir, Runner: runner, Store: store, RunID: runID}
}

// Checkpoint computes the changed-file and package manifests in
// parallel, tars+gzips the changed files, and uploads both to the K/V
// store under the fixed keys. All errors are logged and swallowed —
// a checkpoint must never block shutdown (spec §4.11, §7).
func (c *Checkpointer) Checkpoint(ctx context.Context) {
	markerTime := MarkerTime()

	var (
		wg      sync.WaitGroup
		changed []ChangedFile
		aptPkgs []string
		pipPkgs []string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		files, err := FindChangedFiles(c.Root, markerTime)
		if err != nil {
			log.Printf("⚠️  [MIGRATION] failed to enumerate changed files: %v", err)
			return
		}
		changed = files
	}()
	go func() {
		defer wg.Done()
		pkgs, err := AptInstalledPackages()
		if err != nil {
			log.Printf("⚠️  [MIGRATION] failed to parse apt history: %v", err)
			return
		}
		aptPkgs = pkgs
	}()
	go func() {
		defer wg.Done()
		pkgs, err := PipInstalledPackages(ctx, c.Runner, c.VenvDir)
		if err != nil {
			log.Printf("⚠️  [MIGRATION] failed to diff pip freeze: %v", err)
			return
		}
		pipPkgs = pkgs
	}()
	wg.Wait()

	manifest := Manifest{
		Version:          ManifestVersion,
		CreatedAt:        time.Now(),
		RunID:            c.RunID,
		StartupTimestamp: markerTime,
		Packages:         PackageManifest{Apt: aptPkgs, Pip: pipPkgs},
		ChangedFiles: ChangedManifest{
			Count:     len(changed),
			TotalSize: totalSize(changed),
			Paths:     paths(changed),
		},
	}

	tarball, err := buildTarball(changed)
	if err != nil {
		log.Printf("⚠️  [MIGRATION] failed to build tarball: %v", err)
		return
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		log.Printf("⚠️  [MIGRATION] failed to marshal manifest: %v", err)
		return
	}

	if err := c.Store.Set(ctx, KeyManifest, manifestJSON); err != nil {
		log.Printf("⚠️  [MIGRATION] failed to upload manifest: %v", err)
		return
	}
	if err := c.Store.Set(ctx, KeyTarball, tarball); err != nil {
		log.Printf("⚠️  [MIGRATION] failed to upload tarball: %v", err)
		return
	}

	log.Printf("✅ [MIGRATION] checkpoint uploaded: %d files (%d bytes), %d apt, %d pip packages",
		manifest.ChangedFiles.Count, manifest.ChangedFiles.TotalSize, len(aptPkgs), len(pipPkgs))
}

// buildTarball writes a gzipped POSIX tar of the given files,
// preserving permissions and absolute paths. An empty file set
// produces an empty (zero-byte) result (spec §4.11 step 3).
func buildTarball(files []ChangedFile) ([]byte, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for _, f := range files {
		info, err := os.Lstat(f.Path)
		if err != nil {
			// File vanished between enumeration and archival; skip it
			// rather than failing the whole checkpoint.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			continue
		}
		hdr.Name = f.Path

		data, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		hdr.Size = int64(len(data))

		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
