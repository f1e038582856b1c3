package migration

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Checkpointer on a cron schedule as a safety net
// between platform-triggered "migrating" events, using the
// cron.New/AddFunc idiom the teacher uses to run its agent jobs
// (hdn/agent_scheduler.go), without the teacher's WithSeconds option.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds a Scheduler that checkpoints on expr (a
// standard 5-field cron expression, seconds not required) using ctx
// for each run. Returns an error if expr cannot be parsed.
func NewScheduler(expr string, checkpointer *Checkpointer, ctx context.Context) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		log.Printf("ℹ️  [MIGRATION] scheduled checkpoint starting")
		checkpointer.Checkpoint(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, waiting for any in-flight checkpoint to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
