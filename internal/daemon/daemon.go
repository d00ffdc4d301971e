package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"podforge/internal/config"
	"podforge/internal/engine"
	"podforge/internal/logging"
	"podforge/internal/metrics"
	"podforge/internal/queue"
	"podforge/internal/statestore"
)

// JobService is the engine surface used by the daemon. *engine.Engine
// satisfies it.
type JobService interface {
	Submit(ctx context.Context, sub engine.Submission) (string, error)
	SubmitBatch(ctx context.Context, subs []engine.Submission) ([]string, error)
	Get(id string) (*queue.Job, bool)
	List(status queue.Status, limit int) ([]*queue.Job, int)
	Cancel(id string) (bool, error)
	Retry(id string) (bool, error)
	ClearOlderThan(age time.Duration) int
	Metrics() metrics.Snapshot
	Health(ctx context.Context) engine.Health
	Start(ctx context.Context) error
	Stop()
}

// Daemon coordinates the engine and API server and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	jobs   JobService
	store  statestore.Store
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon. store may be nil; when set it is closed by Close
// after the engine has written its final snapshot.
func New(cfg *config.Config, jobs JobService, store statestore.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || jobs == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		jobs:     jobs,
		store:    store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, jobs, logger)
	return d, nil
}

// Start acquires the daemon lock, then starts the engine and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another podforge daemon instance is already running (lock %s)", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.jobs.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start engine: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.jobs.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("podforge daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.Addr()),
	)
	return nil
}

// Stop shuts down the API server first so no new work arrives, then stops
// the engine and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.jobs.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("podforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the state store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the bound API address, or the configured bind before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}
