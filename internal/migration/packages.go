package migration

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apify/actor-sandbox/internal/procexec"
)

const aptHistoryPath = "/var/log/apt/history.log"

// baselinePipFreezePath is the on-image artifact captured at build
// time (spec §6.4: "a baseline Python freeze file at a known path").
// SPEC_FULL.md fixes this path; if the file is absent the baseline is
// treated as empty so every installed package is reported as new.
const baselinePipFreezePath = "/opt/sandbox/baseline-requirements.txt"

// AptInstalledPackages parses history.log for "Install:" lines and
// returns the package names mentioned, approximating the set of OS
// packages the user installed (spec §4.11 "Package snapshot").
func AptInstalledPackages() ([]string, error) {
	f, err := os.Open(aptHistoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	seen := map[string]bool{}
	var out []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Install:") {
			continue
		}
		for _, name := range parseAptInstallLine(line) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseAptInstallLine extracts bare package names from a line like:
//
//	Install: vim-common:amd64 (2:8.2.3995-1ubuntu2), vim:amd64 (2:8.2.3995-1ubuntu2, automatic)
func parseAptInstallLine(line string) []string {
	rest := strings.TrimPrefix(line, "Install:")
	entries := strings.Split(rest, ",")
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		// Drop the "(version, automatic)" suffix.
		if idx := strings.Index(e, " ("); idx != -1 {
			e = e[:idx]
		}
		// Drop the ":arch" architecture qualifier.
		if idx := strings.Index(e, ":"); idx != -1 {
			e = e[:idx]
		}
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// PipInstalledPackages runs "pip freeze" inside venvDir and returns
// the entries not present in the baseline freeze file (spec §4.11
// "Package snapshot").
func PipInstalledPackages(ctx context.Context, runner *procexec.Runner, venvDir string) ([]string, error) {
	pip := filepath.Join(venvDir, "bin", "pip")
	res, err := runner.Run(ctx, shellQuoteArg(pip)+" freeze", venvDir, 60*time.Second)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, nil
	}

	current := splitLines(res.Stdout)
	baseline := loadBaseline()

	baseSet := map[string]bool{}
	for _, b := range baseline {
		baseSet[b] = true
	}

	var diff []string
	for _, c := range current {
		if c != "" && !baseSet[c] {
			diff = append(diff, c)
		}
	}
	return diff, nil
}

func loadBaseline() []string {
	b, err := os.ReadFile(baselinePipFreezePath)
	if err != nil {
		return nil
	}
	return splitLines(string(b))
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func shellQuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
