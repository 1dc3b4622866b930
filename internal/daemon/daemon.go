// Package daemon wires the gateway, delivery engine, and control API into
// a single-instance background service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fieldlink/internal/ai"
	"fieldlink/internal/auth"
	"fieldlink/internal/config"
	"fieldlink/internal/gateway"
	"fieldlink/internal/inspection"
	"fieldlink/internal/intent"
	"fieldlink/internal/logging"
	"fieldlink/internal/ratelimit"
	"fieldlink/internal/workflow"
)

// Daemon owns the realtime gateway and its collaborators, and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *inspection.Store
	engine   *workflow.Engine
	registry *gateway.Registry
	router   *gateway.Router
	ws       *gateway.Server
	verifier auth.TokenVerifier

	lockPath string
	lock     *flock.Flock

	api     *apiServer
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	Sessions         int
	Delivery         workflow.Counters
	InspectionDBPath string
	LockFilePath     string
}

// New constructs a daemon with initialized collaborators.
func New(cfg *config.Config, store *inspection.Store, engine *workflow.Engine, assist ai.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil || assist == nil {
		return nil, errors.New("daemon requires config, store, engine, and ai service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := gateway.NewRegistry()
	limiter := ratelimit.New(cfg.RateLimitWindow(), cfg.Gateway.RateLimitMaxMessages)
	trigger := intent.NewTrigger(store, engine, logger)
	router := gateway.NewRouter(registry, limiter, assist, trigger, logger)
	verifier := auth.NewStaticVerifier(cfg.Gateway.APIToken)
	ws := gateway.NewServer(router, verifier, cfg.Gateway.AuthRequired, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "fieldlinkd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		engine:   engine,
		registry: registry,
		router:   router,
		ws:       ws,
		verifier: verifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d)
	return d, nil
}

// Start acquires the instance lock and brings up the listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldlink daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.api.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("fieldlink daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Gateway.Bind))
	return nil
}

// Stop shuts the listener down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("fieldlink daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports runtime information for the control API.
func (d *Daemon) Status() Status {
	return Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		Sessions:         d.registry.Len(),
		Delivery:         d.engine.Snapshot(),
		InspectionDBPath: d.store.Path(),
		LockFilePath:     d.lockPath,
	}
}
