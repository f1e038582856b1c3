package migration

import (
	"context"
	"testing"
)

func TestNewSchedulerRejectsInvalidCronExpression(t *testing.T) {
	store := newTestStore(t)
	cp := NewCheckpointer(t.TempDir(), t.TempDir(), nil, store, "run-1")

	if _, err := NewScheduler("not a cron expression", cp, context.Background()); err == nil {
		t.Fatalf("expected an error for an invalid cron expression")
	}
}

func TestNewSchedulerStartStopWithDistantSchedule(t *testing.T) {
	store := newTestStore(t)
	cp := NewCheckpointer(t.TempDir(), t.TempDir(), nil, store, "run-1")

	sched, err := NewScheduler("@every 1h", cp, context.Background())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	sched.Start()
	sched.Stop()
}
