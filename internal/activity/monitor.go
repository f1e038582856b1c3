// Package activity implements the Activity/Idle Monitor (C10): a
// single last-activity timestamp, updated by user-facing traffic, and
// a background ticker that exits the process once the service has
// been idle past a configured timeout (spec §4.10). Grounded in the
// teacher's scheduler.go ticker-driven background loop idiom.
package activity

import (
	"log"
	"os"
	"sync/atomic"
	"time"
)

// checkInterval is a var (not const) so tests can shorten it rather
// than waiting out the real 30s tick.
var checkInterval = 30 * time.Second

// Monitor tracks lastActivityAt as a racy, idempotent single word
// (spec §5: "any recent update keeps the service alive").
type Monitor struct {
	lastActivityUnixNano atomic.Int64
	idleTimeout          time.Duration
	exit                 func(code int)
}

// New builds a Monitor with idleTimeoutSeconds from config.
// idleTimeoutSeconds<=0 disables the monitor entirely (spec §4.10).
func New(idleTimeoutSeconds int) *Monitor {
	m := &Monitor{
		idleTimeout: time.Duration(idleTimeoutSeconds) * time.Second,
		exit:        os.Exit,
	}
	m.Touch()
	return m
}

// Touch records activity now. Called on every non-probe, non-/health
// HTTP request and on every byte flowing through the PTY WebSocket.
func (m *Monitor) Touch() {
	m.lastActivityUnixNano.Store(time.Now().UnixNano())
}

// LastActivity returns the last recorded activity time.
func (m *Monitor) LastActivity() time.Time {
	return time.Unix(0, m.lastActivityUnixNano.Load())
}

// Run blocks, checking idleness every 30s, until stop is closed. A
// non-positive idle timeout disables the monitor (it blocks on stop
// only). On an idle timeout it logs and exits the process.
func (m *Monitor) Run(stop <-chan struct{}) {
	if m.idleTimeout <= 0 {
		log.Printf("ℹ️  [ACTIVITY] idle monitor disabled (idleTimeoutSeconds<=0)")
		<-stop
		return
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idleFor := time.Since(m.LastActivity())
			if idleFor >= m.idleTimeout {
				log.Printf("ℹ️  [ACTIVITY] idle for %s (limit %s), shutting down", idleFor, m.idleTimeout)
				m.exit(0)
				return
			}
		}
	}
}
