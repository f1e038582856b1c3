package procexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunSuccess(t *testing.T) {
	r := NewRunner(t.TempDir())
	res, err := r.Run(context.Background(), "echo hi", "", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hi" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner(t.TempDir())
	res, err := r.Run(context.Background(), "exit 1", "", 0)
	if err != nil {
		t.Fatalf("run should not surface an internal error for a plain nonzero exit: %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", res.ExitCode)
	}
}

func TestRunTimeoutReturnsPartialOutputAndNonzeroExit(t *testing.T) {
	r := NewRunner(t.TempDir())
	res, err := r.Run(context.Background(), "echo partial; sleep 5", "", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected TimedOut=true")
	}
	if res.ExitCode == 0 {
		t.Fatalf("expected nonzero exit code on timeout")
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Fatalf("stderr should mention timeout, got %q", res.Stderr)
	}
	if !strings.Contains(res.Stdout, "partial") {
		t.Fatalf("stdout should keep the output written before the timeout, got %q", res.Stdout)
	}
}

func TestRunEmptyCommandIsRejected(t *testing.T) {
	r := NewRunner(t.TempDir())
	if _, err := r.Run(context.Background(), "   ", "", 0); err == nil {
		t.Fatalf("expected an error for an empty command")
	}
}

func TestBuildEnvOverlay(t *testing.T) {
	r := NewRunner("/sandbox")
	env := r.buildEnv()

	var path, nodePath, virtualEnv, pythonHome string
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			path = kv
		case strings.HasPrefix(kv, "NODE_PATH="):
			nodePath = kv
		case strings.HasPrefix(kv, "VIRTUAL_ENV="):
			virtualEnv = kv
		case strings.HasPrefix(kv, "PYTHONHOME="):
			pythonHome = kv
		}
	}

	if !strings.Contains(path, "js-ts/node_modules/.bin") || !strings.Contains(path, "py/venv/bin") {
		t.Fatalf("PATH missing per-language bin dirs: %q", path)
	}
	if nodePath != "NODE_PATH=/sandbox/js-ts/node_modules" {
		t.Fatalf("NODE_PATH = %q", nodePath)
	}
	if virtualEnv != "VIRTUAL_ENV=/sandbox/py/venv" {
		t.Fatalf("VIRTUAL_ENV = %q", virtualEnv)
	}
	if pythonHome != "PYTHONHOME=" {
		t.Fatalf("PYTHONHOME = %q, want emptied", pythonHome)
	}
}
