// Package envsetup implements the Env Installer (C5) and the
// Init-Script Runner (C6): preparing per-language workspaces,
// installing npm/pip dependencies idempotently, and running the
// user-supplied one-shot init script (spec §4.5–4.6). Grounded in the
// teacher's simple_docker_executor.go subprocess-invocation idiom.
package envsetup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apify/actor-sandbox/internal/procexec"
)

const perPackageTimeout = 120 * time.Second

// InstallReport aggregates the outcome of installing a set of
// packages for one language (spec §4.5).
type InstallReport struct {
	Success   bool
	Installed []string
	Failed    []string
}

// Installer prepares and populates the Node and Python workspaces
// under Root.
type Installer struct {
	Root   string
	Runner *procexec.Runner
}

// NewInstaller builds an Installer rooted at root.
func NewInstaller(root string, runner *procexec.Runner) *Installer {
	return &Installer{Root: root, Runner: runner}
}

func (in *Installer) jsRoot() string   { return filepath.Join(in.Root, "js-ts") }
func (in *Installer) pyRoot() string   { return filepath.Join(in.Root, "py") }
func (in *Installer) venvDir() string  { return filepath.Join(in.pyRoot(), "venv") }
func (in *Installer) nodeModules() string {
	return filepath.Join(in.jsRoot(), "node_modules")
}

// PrepareNodeWorkspace ensures R/js-ts exists with a package.json and
// node_modules directory, reporting whether it was already
// pre-provisioned (spec §4.5).
func (in *Installer) PrepareNodeWorkspace() (preProvisioned bool, err error) {
	pkgJSON := filepath.Join(in.jsRoot(), "package.json")
	nodeModules := in.nodeModules()

	if fileExists(pkgJSON) && dirExists(nodeModules) {
		log.Printf("ℹ️  [ENVSETUP] node workspace pre-provisioned at %s", in.jsRoot())
		return true, nil
	}

	if err := os.MkdirAll(in.jsRoot(), 0o755); err != nil {
		return false, err
	}
	if !fileExists(pkgJSON) {
		manifest := `{"name":"sandbox-js-ts","version":"1.0.0","private":true,"type":"module"}` + "\n"
		if err := os.WriteFile(pkgJSON, []byte(manifest), 0o644); err != nil {
			return false, err
		}
	}
	if err := os.MkdirAll(nodeModules, 0o755); err != nil {
		return false, err
	}

	log.Printf("✅ [ENVSETUP] node workspace created at %s", in.jsRoot())
	return false, nil
}

// PrepareVenv ensures R/py/venv exists, reporting whether it was
// already pre-provisioned.
func (in *Installer) PrepareVenv(ctx context.Context) (preProvisioned bool, err error) {
	venv := in.venvDir()
	if dirExists(venv) {
		log.Printf("ℹ️  [ENVSETUP] python venv pre-provisioned at %s", venv)
		return true, nil
	}

	if err := os.MkdirAll(in.pyRoot(), 0o755); err != nil {
		return false, err
	}

	res, err := in.Runner.Run(ctx, fmt.Sprintf("python -m venv %s", shellQuote(venv)), in.pyRoot(), perPackageTimeout)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("failed to create venv: %s", res.Stderr)
	}

	log.Printf("✅ [ENVSETUP] python venv created at %s", venv)
	return false, nil
}

// InstallNode installs each (pkg, versionSpec) pair with npm, cwd
// R/js-ts, aggregating successes and failures (spec §4.5). Never
// returns a Go error for a package install failure — only for
// internal plumbing errors.
func (in *Installer) InstallNode(ctx context.Context, deps map[string]string) InstallReport {
	report := InstallReport{Success: true}

	for pkg, version := range deps {
		spec := pkg
		if version != "" {
			spec = pkg + "@" + version
		}

		runCtx, cancel := context.WithTimeout(ctx, perPackageTimeout)
		res, err := in.Runner.Run(runCtx, fmt.Sprintf("npm install --no-audit --no-fund %s", shellQuote(spec)), in.jsRoot(), perPackageTimeout)
		cancel()

		if err != nil || res.ExitCode != 0 {
			log.Printf("⚠️  [ENVSETUP] npm install failed for %s: %v", spec, firstNonEmpty(errString(err), res.Stderr))
			report.Failed = append(report.Failed, pkg)
			report.Success = false
			continue
		}

		report.Installed = append(report.Installed, pkg)
	}

	return report
}

// InstallPython installs each requirements-format line with pip
// inside the venv, aggregating successes and failures (spec §4.5).
func (in *Installer) InstallPython(ctx context.Context, requirementsText string) InstallReport {
	report := InstallReport{Success: true}

	for _, line := range ParseRequirements(requirementsText) {
		runCtx, cancel := context.WithTimeout(ctx, perPackageTimeout)
		cmd := fmt.Sprintf("%s install %s", shellQuote(filepath.Join(in.venvDir(), "bin", "pip")), shellQuote(line))
		res, err := in.Runner.Run(runCtx, cmd, in.pyRoot(), perPackageTimeout)
		cancel()

		if err != nil || res.ExitCode != 0 {
			log.Printf("⚠️  [ENVSETUP] pip install failed for %s: %v", line, firstNonEmpty(errString(err), res.Stderr))
			report.Failed = append(report.Failed, line)
			report.Success = false
			continue
		}

		report.Installed = append(report.Installed, line)
	}

	return report
}

// ParseRequirements splits a requirements.txt-style blob into
// entries, skipping blank lines and # comments (spec §4.5).
func ParseRequirements(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
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

// shellQuote wraps an argument in single quotes for interpolation
// into a shell -c string, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
