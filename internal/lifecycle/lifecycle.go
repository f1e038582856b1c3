// Package lifecycle implements the Lifecycle Controller (C12): the
// startup state machine that composes env install or migration
// restore, the init script, and readiness (spec §4.12). Grounded in
// the teacher's server.go top-level startup sequencing, generalized
// from "load skills and connect to Redis" to "restore-or-install then
// run init script".
package lifecycle

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apify/actor-sandbox/internal/config"
	"github.com/apify/actor-sandbox/internal/envsetup"
	"github.com/apify/actor-sandbox/internal/migration"
	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

// State is one node of the startup state machine (spec §4.12).
type State string

const (
	StateInit              State = "INIT"
	StateRestored          State = "RESTORED"
	StateInstalling        State = "INSTALLING"
	StateInstalled         State = "INSTALLED"
	StateInitScript        State = "INIT_SCRIPT"
	StateReady             State = "READY"
	StateReadyButUnhealthy State = "READY-BUT-UNHEALTHY"
)

// Readiness is the shared, racy-by-design flag read by the HTTP
// facade's /health handler (spec §5 "Shared resources": "a single
// word is sufficient").
type Readiness struct {
	complete atomic.Bool
	mu       sync.RWMutex
	err      string
}

// Complete reports whether startup has finished (successfully or not).
func (r *Readiness) Complete() bool { return r.complete.Load() }

// Error returns the readiness error message, if any.
func (r *Readiness) Error() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Readiness) setError(msg string) {
	r.mu.Lock()
	r.err = msg
	r.mu.Unlock()
}

func (r *Readiness) markComplete(err error) {
	if err != nil {
		r.setError(err.Error())
	}
	r.complete.Store(true)
}

// Controller drives C5 (env install), C6 (init script), and C11
// (restore) during startup and exposes the resulting Readiness and
// State to the rest of the process.
type Controller struct {
	cfg *config.Config

	Resolver  *sandboxfs.Resolver
	Runner    *procexec.Runner
	Installer *envsetup.Installer
	Restorer  *migration.Restorer

	Readiness *Readiness

	mu    sync.RWMutex
	state State

	Restored bool

	onReady []func()
}

// New builds a Controller for the given config, wiring the Resolver,
// Runner, Installer, and Restorer it needs.
func New(cfg *config.Config, store migration.Store) *Controller {
	resolver := sandboxfs.NewResolver(cfg.SandboxRoot)
	runner := procexec.NewRunner(cfg.SandboxRoot)
	installer := envsetup.NewInstaller(cfg.SandboxRoot, runner)
	venvDir := cfg.SandboxRoot + "/py/venv"

	var restorer *migration.Restorer
	if store != nil {
		restorer = migration.NewRestorer(cfg.SandboxRoot, venvDir, runner, store)
	}

	return &Controller{
		cfg:       cfg,
		Resolver:  resolver,
		Runner:    runner,
		Installer: installer,
		Restorer:  restorer,
		Readiness: &Readiness{},
		state:     StateInit,
	}
}

// State returns the controller's current position in the startup
// state machine.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Printf("ℹ️  [LIFECYCLE] -> %s", s)
}

// OnReady registers a callback invoked once Start reaches READY or
// READY-BUT-UNHEALTHY (spec §4.12: "Registers the migration handler
// once READY is reached").
func (c *Controller) OnReady(fn func()) {
	c.onReady = append(c.onReady, fn)
}

// Start runs the full INIT -> ... -> READY(-BUT-UNHEALTHY) sequence.
// In local mode it skips restore, install, and the init script
// entirely (spec §4.9, §6.3) and goes straight to READY.
func (c *Controller) Start(ctx context.Context) {
	if c.cfg.LocalMode {
		log.Printf("ℹ️  [LIFECYCLE] local mode: skipping restore/install/init-script")
		c.setState(StateInitScript)
		c.finish(nil)
		return
	}

	restored := false
	if c.Restorer != nil {
		ok, err := c.Restorer.Restore(ctx)
		if err != nil {
			log.Printf("⚠️  [LIFECYCLE] restore attempt errored (treated as no restore): %v", err)
		}
		restored = ok
	}
	c.Restored = restored

	if restored {
		c.setState(StateRestored)
	} else {
		c.setState(StateInstalling)
		if err := c.install(ctx); err != nil {
			log.Printf("⚠️  [LIFECYCLE] environment install failed: %v", err)
			c.setState(StateInitScript)
			c.runInitScript(ctx)
			c.finish(err)
			return
		}
		c.setState(StateInstalled)
	}

	c.setState(StateInitScript)
	initErr := c.runInitScript(ctx)

	// SPEC_FULL.md §C item 4: the startup marker is recreated at the
	// end of every startup that gets past restore/install, restored or
	// fresh and whether or not the init script succeeded, using a
	// timestamp that predates this run's extraction so restored files
	// remain in the next checkpoint's delta.
	if err := migration.WriteMarker(startOfRun); err != nil {
		log.Printf("⚠️  [LIFECYCLE] failed to write startup marker: %v", err)
	}

	c.finish(initErr)
}

// startOfRun approximates "a timestamp that predates tarball
// extraction" by being captured at package init, before Start ever
// runs the restore/install/init-script sequence.
var startOfRun = time.Now()

func (c *Controller) install(ctx context.Context) error {
	if _, err := c.Installer.PrepareNodeWorkspace(); err != nil {
		return err
	}
	if _, err := c.Installer.PrepareVenv(ctx); err != nil {
		return err
	}

	if len(c.cfg.NodeDependencies) > 0 {
		report := c.Installer.InstallNode(ctx, c.cfg.NodeDependencies)
		if !report.Success {
			log.Printf("⚠️  [LIFECYCLE] some node dependencies failed to install: %v", report.Failed)
		}
	}
	if c.cfg.PythonRequirements != "" {
		report := c.Installer.InstallPython(ctx, c.cfg.PythonRequirements)
		if !report.Success {
			log.Printf("⚠️  [LIFECYCLE] some python requirements failed to install: %v", report.Failed)
		}
	}
	return nil
}

func (c *Controller) runInitScript(ctx context.Context) error {
	if c.cfg.InitScript == "" {
		return nil
	}
	if err := envsetup.RunInit(ctx, c.Runner, c.cfg.SandboxRoot, c.cfg.InitScript); err != nil {
		return err
	}
	return nil
}

func (c *Controller) finish(err error) {
	c.Readiness.markComplete(err)
	if err != nil {
		c.setState(StateReadyButUnhealthy)
	} else {
		c.setState(StateReady)
	}
	for _, fn := range c.onReady {
		fn()
	}
}
