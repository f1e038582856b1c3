package lifecycle

import (
	"context"
	"testing"

	"github.com/apify/actor-sandbox/internal/config"
)

func TestLocalModeSkipsStraightToReady(t *testing.T) {
	cfg := &config.Config{LocalMode: true, SandboxRoot: t.TempDir()}
	ctrl := New(cfg, nil)

	readyCalled := false
	ctrl.OnReady(func() { readyCalled = true })

	ctrl.Start(context.Background())

	if !ctrl.Readiness.Complete() {
		t.Fatalf("expected readiness to be complete")
	}
	if ctrl.Readiness.Error() != "" {
		t.Fatalf("expected no readiness error, got %q", ctrl.Readiness.Error())
	}
	if ctrl.State() != StateReady {
		t.Fatalf("expected state READY, got %s", ctrl.State())
	}
	if !readyCalled {
		t.Fatalf("expected OnReady callback to fire")
	}
}

func TestNoRestorerInstallsAndReachesReady(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{SandboxRoot: root}
	ctrl := New(cfg, nil)

	ctrl.Start(context.Background())

	if ctrl.Restored {
		t.Fatalf("expected a fresh (non-restored) start with no Store configured")
	}
	if !ctrl.Readiness.Complete() {
		t.Fatalf("expected readiness to be complete")
	}
}
