// Package codeexec implements the Code Executor (C4): materializing
// source to a temp file and delegating to the Process Runner (C3).
// Per spec §9's design note, languages are modeled as a small
// polymorphic set keyed by the canonical Lang variant rather than a
// single giant switch.
package codeexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

// Lang is one of the three scriptable languages C4 supports. Shell
// commands bypass C4 entirely and go straight to C3 (spec §4.4).
type Lang string

const (
	LangJS Lang = "js"
	LangTS Lang = "ts"
	LangPY Lang = "py"
)

// Result is the uniform {stdout, stderr, exitCode, language} tuple
// from spec §3; the shell-command paths in httpapi and mcpapi report
// the same four fields in their own response shapes.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Language string
}

// langSpec captures one language's interpreter invocation and default
// cwd (spec §9's Executor capability pair).
type langSpec struct {
	extension       string
	defaultCwd      func(root string) string
	invocation      func(filePath string) string
}

var langSpecs = map[Lang]langSpec{
	LangJS: {
		extension:  "js",
		defaultCwd: func(root string) string { return filepath.Join(root, "js-ts") },
		invocation: func(f string) string { return "node " + f },
	},
	LangTS: {
		extension:  "ts",
		defaultCwd: func(root string) string { return filepath.Join(root, "js-ts") },
		invocation: func(f string) string { return "tsx " + f },
	},
	LangPY: {
		extension:  "py",
		defaultCwd: func(root string) string { return filepath.Join(root, "py") },
		invocation: func(f string) string { return "python " + f },
	},
}

// Executor materializes code to a temp file and runs it through a
// Process Runner, enforcing Invariant E1 (each execution is a fresh
// interpreter process; no shared state across calls).
type Executor struct {
	Root     string
	Runner   *procexec.Runner
	Resolver *sandboxfs.Resolver
}

// NewExecutor builds an Executor rooted at root, using runner for the
// underlying process spawn and resolver to confine an explicit cwd.
func NewExecutor(root string, runner *procexec.Runner, resolver *sandboxfs.Resolver) *Executor {
	return &Executor{Root: root, Runner: runner, Resolver: resolver}
}

// NormalizeLang maps js/javascript, ts/typescript and py/python
// (case-insensitive) to a Lang. Every other value, shell names such as
// "shell", "bash" and "sh" included, is reported as not recognized.
func NormalizeLang(raw string) (Lang, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "js", "javascript":
		return LangJS, true
	case "ts", "typescript":
		return LangTS, true
	case "py", "python":
		return LangPY, true
	}
	return "", false
}

// Execute runs code in lang, with an optional explicit cwd and
// timeout. It never returns a Go error for an ordinary execution
// failure — failures are reported in Result per spec §4.4 step 1/§7.
func (e *Executor) Execute(ctx context.Context, code string, lang Lang, cwd string, timeout time.Duration) (Result, error) {
	spec, ok := langSpecs[lang]
	if !ok {
		return Result{
			Stderr:   fmt.Sprintf("unsupported language: %s", lang),
			ExitCode: 1,
			Language: string(lang),
		}, nil
	}

	if strings.TrimSpace(code) == "" {
		return Result{
			Stderr:   "code must not be empty",
			ExitCode: 1,
			Language: string(lang),
		}, nil
	}

	effectiveCwd := spec.defaultCwd(e.Root)
	if cwd != "" {
		resolved, err := e.Resolver.Resolve(cwd)
		if err != nil {
			return Result{
				Stderr:   fmt.Sprintf("sandbox escape: cwd %q resolves outside the sandbox root", cwd),
				ExitCode: 1,
				Language: string(lang),
			}, nil
		}
		effectiveCwd = resolved
	}

	tmpFile, err := e.writeTempScript(code, spec.extension)
	if err != nil {
		return Result{}, err
	}
	defer e.cleanup(tmpFile)

	command := spec.invocation(tmpFile)

	procRes, err := e.Runner.Run(ctx, command, effectiveCwd, timeout)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Stdout:   procRes.Stdout,
		Stderr:   procRes.Stderr,
		ExitCode: procRes.ExitCode,
		Language: string(lang),
	}, nil
}

// writeTempScript writes code to a uniquely (randomly, not
// content-hash) named temp file, so two concurrent identical
// executions never collide (spec §4.4 step 2, Invariant/testable
// property #8).
func (e *Executor) writeTempScript(code, extension string) (string, error) {
	name := fmt.Sprintf("exec-%d-%s.%s", time.Now().UnixNano(), uuid.NewString(), extension)
	path := filepath.Join(os.TempDir(), name)

	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Executor) cleanup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  [CODEEXEC] failed to remove temp script %s: %v\n", path, err)
	}
}
