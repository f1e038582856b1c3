// Package platformevents receives the outer orchestrator's lifecycle
// events over a NATS subject, the same transport the teacher uses for
// its own event bus (eventbus/nats_bus.go). Only "migrating" is acted
// on; events of any other type are ignored.
// The Migration Persistence component (spec §4.11) checkpoints when
// it hears "migrating"; this package is how that signal reaches it
// when the sandbox runs alongside a real orchestrator rather than in
// local mode.
package platformevents

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Event mirrors the orchestrator's lifecycle notification payload.
type Event struct {
	Type string `json:"type"`
}

const (
	subjectLifecycle = "actor.lifecycle"

	// EventMigrating is published before the platform relocates the
	// running container; receiving it should trigger a checkpoint.
	EventMigrating = "migrating"
)

// Bus wraps a NATS connection scoped to the sandbox's lifecycle subject.
type Bus struct {
	nc *nats.Conn
}

// Connect dials the NATS server at url, matching the teacher's
// reconnect-forever dial options so a blip in the broker doesn't tear
// the subscription down.
func Connect(url string) (*Bus, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("actor-sandbox"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc}, nil
}

// OnMigrating subscribes to the lifecycle subject and invokes handler
// whenever a "migrating" event arrives. Malformed payloads and events
// of any other type are ignored.
func (b *Bus) OnMigrating(handler func()) error {
	_, err := b.nc.Subscribe(subjectLifecycle, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Printf("⚠️  [PLATFORMEVENTS] dropping malformed lifecycle event: %v", err)
			return
		}
		if evt.Type == EventMigrating {
			handler()
		}
	})
	return err
}

// Close closes the underlying connection without draining it.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
