package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"podforge/internal/config"
	"podforge/internal/events"
	"podforge/internal/logging"
	"podforge/internal/metrics"
	"podforge/internal/pipeline"
	"podforge/internal/queue"
	"podforge/internal/retry"
	"podforge/internal/stage"
	"podforge/internal/statestore"
)

// Runner executes one job attempt. *pipeline.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, job *queue.Job, progress pipeline.ProgressFunc) error
	HealthCheck(ctx context.Context) []stage.Health
}

// Options wires an Engine. Config and Runner are required; Store, Bus and
// Monitor are optional.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Runner  Runner
	Store   statestore.Store
	Bus     *events.Bus
	Monitor *metrics.Monitor
	Policy  *retry.Policy

	// JobTimeout overrides engine.job_timeout_seconds when positive.
	JobTimeout time.Duration
	// AutoSaveInterval overrides engine.auto_save_interval_seconds when positive.
	AutoSaveInterval time.Duration
	// Now overrides the wall clock.
	Now func() time.Time
}

type run struct {
	gen    uint64
	cancel context.CancelFunc
}

type task struct {
	job *queue.Job
	gen uint64
}

// Engine schedules and executes jobs.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	runner  Runner
	store   statestore.Store
	bus     *events.Bus
	monitor *metrics.Monitor
	policy  retry.Policy
	now     func() time.Time

	maxConcurrent    int
	jobTimeout       time.Duration
	dispatchInterval time.Duration
	autoSaveInterval time.Duration
	metricsInterval  time.Duration
	shutdownTimeout  time.Duration

	mu          sync.Mutex
	jobs        map[string]*queue.Job
	pending     queue.PendingIndex
	running     map[string]*run
	nextGen     uint64
	lastCreated time.Time
	restored    bool
	started     bool
	stopping    bool
	cancel      context.CancelFunc

	// outbox holds events in commit order until flushEvents delivers them.
	outbox   []events.Event
	draining bool

	wake    chan struct{}
	work    chan task
	loops   sync.WaitGroup
	workers sync.WaitGroup
}

// New constructs an engine. Nothing runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("engine: config is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("engine: runner is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := retry.FromConfig(cfg)
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	e := &Engine{
		cfg:              cfg,
		logger:           logging.NewComponentLogger(logger, "engine"),
		runner:           opts.Runner,
		store:            opts.Store,
		bus:              opts.Bus,
		monitor:          opts.Monitor,
		policy:           policy,
		now:              now,
		maxConcurrent:    max(cfg.Engine.MaxConcurrentJobs, 1),
		jobTimeout:       cfg.JobTimeout(),
		dispatchInterval: cfg.DispatchInterval(),
		autoSaveInterval: cfg.AutoSaveInterval(),
		metricsInterval:  cfg.MetricsInterval(),
		shutdownTimeout:  cfg.ShutdownTimeout(),
		jobs:             make(map[string]*queue.Job),
		running:          make(map[string]*run),
		wake:             make(chan struct{}, 1),
		work:             make(chan task),
	}
	if opts.JobTimeout > 0 {
		e.jobTimeout = opts.JobTimeout
	}
	if opts.AutoSaveInterval > 0 {
		e.autoSaveInterval = opts.AutoSaveInterval
	}
	if e.dispatchInterval <= 0 {
		e.dispatchInterval = time.Second
	}
	if e.metricsInterval <= 0 {
		e.metricsInterval = 10 * time.Second
	}
	if e.monitor == nil {
		e.monitor = metrics.NewMonitor(metrics.Options{
			Window:               cfg.Metrics.Window,
			FailureRateThreshold: cfg.Metrics.FailureRateThreshold,
			MinSamples:           cfg.Metrics.MinSamples,
			HeartbeatTimeout:     3 * max(e.metricsInterval, e.dispatchInterval),
			Now:                  now,
		})
	}
	return e, nil
}

// Bus returns the event bus, which may be nil.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

func newJobID() string {
	return uuid.NewString()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// queueEvent records ev behind every event committed before it. Caller
// holds e.mu.
func (e *Engine) queueEvent(ev events.Event) {
	if e.bus == nil {
		return
	}
	e.outbox = append(e.outbox, ev)
}

// flushEvents delivers queued events in order. Only one goroutine drains at
// a time; a caller that finds a drain in progress leaves its events to that
// drainer, which loops until the outbox is empty. Subscribers run without
// e.mu held, so they may call back into the engine.
func (e *Engine) flushEvents() {
	e.mu.Lock()
	if e.draining || e.bus == nil {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()
		for _, ev := range batch {
			e.bus.Publish(context.Background(), ev)
		}
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

// publish queues and delivers a single event.
func (e *Engine) publish(ev events.Event) {
	e.mu.Lock()
	e.queueEvent(ev)
	e.mu.Unlock()
	e.flushEvents()
}
