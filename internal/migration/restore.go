package migration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apify/actor-sandbox/internal/procexec"
)

// Restorer implements the restore half of C11, run once during
// startup before env install (spec §4.11 "Restore procedure").
type Restorer struct {
	Root    string
	VenvDir string
	Runner  *procexec.Runner
	Store   Store
}

// NewRestorer builds a Restorer rooted at sandboxRoot.
func NewRestorer(sandboxRoot, venvDir string, runner *procexec.Runner, store Store) *Restorer {
	return &Restorer{Root: sandboxRoot, VenvDir: venvDir, Runner: runner, Store: store}
}

// Restore reads the manifest from the K/V store, extracts the
// tarball, and reinstalls OS/Python/Node packages. It returns
// (true, nil) on a successful restore, (false, nil) when there is no
// prior snapshot to restore, and a non-nil error only for conditions
// the controller should still treat as "no restore" per spec §7
// ("Migration restore errors return 'no restore'").
func (r *Restorer) Restore(ctx context.Context) (bool, error) {
	manifestBytes, err := r.Store.Get(ctx, KeyManifest)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		log.Printf("⚠️  [MIGRATION] failed to read manifest: %v", err)
		return false, nil
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		log.Printf("⚠️  [MIGRATION] failed to parse manifest: %v", err)
		return false, nil
	}

	if manifest.ChangedFiles.Count > 0 {
		tarball, err := r.Store.Get(ctx, KeyTarball)
		if err != nil {
			log.Printf("⚠️  [MIGRATION] failed to read tarball: %v", err)
			return false, nil
		}
		if err := extractTarball(tarball); err != nil {
			log.Printf("⚠️  [MIGRATION] failed to extract tarball: %v", err)
			return false, nil
		}
	} else {
		log.Printf("ℹ️  [MIGRATION] empty changed-file set, skipping tar extraction")
	}

	r.reinstallApt(ctx, manifest.Packages.Apt)
	r.reinstallPip(ctx, manifest.Packages.Pip)
	r.reinstallNode(ctx)

	log.Printf("✅ [MIGRATION] restored %d files, %d apt packages, %d pip packages",
		manifest.ChangedFiles.Count, len(manifest.Packages.Apt), len(manifest.Packages.Pip))
	return true, nil
}

// extractTarball unpacks a gzipped tar with absolute paths rooted at
// "/", preserving permissions (Invariant M1: additive, last-writer-
// wins on conflicts).
func extractTarball(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest := hdr.Name
		if !filepath.IsAbs(dest) {
			dest = filepath.Join("/", dest)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			log.Printf("⚠️  [MIGRATION] failed to create parent dir for %s: %v", dest, err)
			continue
		}

		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			log.Printf("⚠️  [MIGRATION] failed to restore %s: %v", dest, err)
			continue
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			log.Printf("⚠️  [MIGRATION] failed to write %s: %v", dest, err)
			continue
		}
		f.Close()
	}
}

func (r *Restorer) reinstallApt(ctx context.Context, packages []string) {
	if len(packages) == 0 {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if res, err := r.Runner.Run(runCtx, "apt-get update", "/", 5*time.Minute); err != nil || res.ExitCode != 0 {
		log.Printf("⚠️  [MIGRATION] apt-get update failed during restore: %v", firstNonEmpty(errString(err), res.Stderr))
	}

	cmd := fmt.Sprintf("apt-get install -y %s", strings.Join(packages, " "))
	res, err := r.Runner.Run(runCtx, cmd, "/", 5*time.Minute)
	if err != nil || res.ExitCode != 0 {
		log.Printf("⚠️  [MIGRATION] apt package restore failed: %v", firstNonEmpty(errString(err), res.Stderr))
	}
}

func (r *Restorer) reinstallPip(ctx context.Context, packages []string) {
	if len(packages) == 0 {
		return
	}

	reqPath := filepath.Join(os.TempDir(), "restored-requirements.txt")
	if err := os.WriteFile(reqPath, []byte(strings.Join(packages, "\n")+"\n"), 0o644); err != nil {
		log.Printf("⚠️  [MIGRATION] failed to write restored requirements: %v", err)
		return
	}
	defer os.Remove(reqPath)

	pip := filepath.Join(r.VenvDir, "bin", "pip")
	cmd := fmt.Sprintf("%s install -r %s", shellQuoteArg(pip), shellQuoteArg(reqPath))
	res, err := r.Runner.Run(ctx, cmd, r.VenvDir, 5*time.Minute)
	if err != nil || res.ExitCode != 0 {
		log.Printf("⚠️  [MIGRATION] pip package restore failed: %v", firstNonEmpty(errString(err), res.Stderr))
	}
}

func (r *Restorer) reinstallNode(ctx context.Context) {
	jsRoot := filepath.Join(r.Root, "js-ts")
	pkgJSON := filepath.Join(jsRoot, "package.json")
	if _, err := os.Stat(pkgJSON); err != nil {
		return
	}

	res, err := r.Runner.Run(ctx, "npm install --no-audit --no-fund", jsRoot, 5*time.Minute)
	if err != nil || res.ExitCode != 0 {
		log.Printf("⚠️  [MIGRATION] node package restore failed: %v", firstNonEmpty(errString(err), res.Stderr))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
