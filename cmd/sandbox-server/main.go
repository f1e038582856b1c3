// Command sandbox-server is the actor-sandbox entrypoint: it loads
// the environment contract, drives the Lifecycle Controller through
// restore-or-install and the init script, then serves HTTP, MCP, and
// terminal traffic until idle-shutdown or a migration signal (spec
// §4.12, §6.5). Grounded in the teacher's server.go main()/
// startAPIServer() sequencing and api.go's Start(port) idiom.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/apify/actor-sandbox/internal/activity"
	"github.com/apify/actor-sandbox/internal/codeexec"
	"github.com/apify/actor-sandbox/internal/config"
	"github.com/apify/actor-sandbox/internal/httpapi"
	"github.com/apify/actor-sandbox/internal/lifecycle"
	"github.com/apify/actor-sandbox/internal/mcpapi"
	"github.com/apify/actor-sandbox/internal/migration"
	"github.com/apify/actor-sandbox/internal/platformevents"
	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
	"github.com/apify/actor-sandbox/internal/termproxy"
)

func main() {
	cfg := config.Load()

	var store migration.Store
	if !cfg.LocalMode {
		store = migration.NewRedisStore(cfg.RedisAddr)
	}

	ctrl := lifecycle.New(cfg, store)

	monitor := activity.New(cfg.IdleTimeoutSeconds)

	resolver := sandboxfs.NewResolver(cfg.SandboxRoot)
	runner := procexec.NewRunner(cfg.SandboxRoot)
	executor := codeexec.NewExecutor(cfg.SandboxRoot, runner, resolver)
	mcp := mcpapi.New(cfg.SandboxRoot, runner, resolver, executor)

	// shell is kept as the httpapi.ShellProxy interface itself, not a
	// *termproxy.Proxy variable: a nil *termproxy.Proxy boxed into an
	// interface value is a non-nil interface, which would defeat
	// Server.handleShell's nil check in local mode.
	var shell httpapi.ShellProxy
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.LocalMode {
		if err := termproxy.EnsureRCFile(cfg.SandboxRoot); err != nil {
			log.Printf("⚠️  [MAIN] failed to write managed shell rc file: %v", err)
		}
		shellProxy := termproxy.New(cfg.SandboxRoot, monitor)
		go shellProxy.Run(rootCtx)
		shell = shellProxy
	} else {
		log.Printf("ℹ️  [MAIN] local mode: terminal proxy disabled")
	}

	httpServer := httpapi.New(cfg, ctrl, monitor, mcp, shell)

	runID := uuid.NewString()
	checkpointer := migration.NewCheckpointer(cfg.SandboxRoot, cfg.SandboxRoot+"/py/venv", runner, store, runID)

	// The migration handler (platform "migrating" event -> checkpoint)
	// is registered only once the controller reaches READY (spec
	// §4.12), so a migration mid-install can never race the restore.
	// The pointers are set from the OnReady callback, which lifecycle
	// runs on its own goroutine, and read again during shutdown on the
	// main goroutine, hence atomic.Pointer rather than plain vars.
	var eventBus atomic.Pointer[platformevents.Bus]
	var scheduler atomic.Pointer[migration.Scheduler]
	if store != nil {
		ctrl.OnReady(func() {
			bus, err := platformevents.Connect(cfg.NatsURL)
			if err != nil {
				log.Printf("⚠️  [MAIN] migration event bus unavailable, relying on SIGUSR1 only: %v", err)
			} else {
				if err := bus.OnMigrating(func() {
					log.Printf("ℹ️  [MAIN] platform migrating event received, checkpointing")
					checkpointer.Checkpoint(rootCtx)
				}); err != nil {
					log.Printf("⚠️  [MAIN] failed to subscribe to migration events: %v", err)
				}
				eventBus.Store(bus)
			}

			if cfg.CheckpointCron != "" {
				sched, err := migration.NewScheduler(cfg.CheckpointCron, checkpointer, rootCtx)
				if err != nil {
					log.Printf("⚠️  [MAIN] invalid MIGRATION_CHECKPOINT_CRON %q: %v", cfg.CheckpointCron, err)
				} else {
					sched.Start()
					scheduler.Store(sched)
				}
			}
		})
	}

	go ctrl.Start(rootCtx)

	idleStop := make(chan struct{})
	go monitor.Run(idleStop)
	defer close(idleStop)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: httpServer}

	go func() {
		log.Printf("🌐 [MAIN] listening on %s (public URL: %s)", addr, cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ [MAIN] HTTP server error: %v", err)
		}
	}()

	waitForShutdownSignal(rootCtx, store != nil, checkpointer)

	if sched := scheduler.Load(); sched != nil {
		sched.Stop()
	}
	if bus := eventBus.Load(); bus != nil {
		bus.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  [MAIN] graceful shutdown error: %v", err)
	}
	cancel()
}

// waitForShutdownSignal blocks until SIGTERM/SIGINT (ordinary
// shutdown) or SIGUSR1, which this entrypoint treats as a manual
// fallback for the platform's "migrating" signal (the NATS
// subscription registered in OnReady is the primary binding; see
// DESIGN.md Open Question decision 6). Unlike that subscription, the
// SIGUSR1 handler is active from process start, before READY. On
// SIGUSR1 it runs a checkpoint and keeps serving; on SIGTERM/SIGINT
// it checkpoints once more (best-effort) and returns to let the
// caller shut the HTTP server down.
func waitForShutdownSignal(ctx context.Context, migrationEnabled bool, checkpointer *migration.Checkpointer) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)

	for sig := range sigs {
		if sig == syscall.SIGUSR1 {
			if migrationEnabled {
				log.Printf("ℹ️  [MAIN] received migrating signal, checkpointing")
				checkpointer.Checkpoint(ctx)
			}
			continue
		}

		log.Printf("ℹ️  [MAIN] received %s, shutting down", sig)
		if migrationEnabled {
			checkpointer.Checkpoint(ctx)
		}
		return
	}
}
