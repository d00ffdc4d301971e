package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"podforge/internal/config"
	"podforge/internal/engine"
	"podforge/internal/events"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/queue"
	"podforge/internal/stage"
	"podforge/internal/statestore"
	"podforge/internal/testsupport"
)

type fakeRunner struct {
	mu     sync.Mutex
	order  []string
	active int
	peak   int
	run    func(ctx context.Context, job *queue.Job) error
}

func (f *fakeRunner) Execute(ctx context.Context, job *queue.Job, progress pipeline.ProgressFunc) error {
	f.mu.Lock()
	f.order = append(f.order, job.ID)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	job.SetProgress(pipeline.StagePrompt, 25)
	if progress != nil {
		progress(job)
	}
	if f.run != nil {
		return f.run(ctx, job)
	}
	return nil
}

func (f *fakeRunner) HealthCheck(context.Context) []stage.Health {
	return []stage.Health{stage.Healthy("fake")}
}

func (f *fakeRunner) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeRunner) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type harness struct {
	engine   *engine.Engine
	recorder *events.Recorder
	cfg      *config.Config
}

type harnessOption func(*engine.Options)

func withStore(store statestore.Store) harnessOption {
	return func(o *engine.Options) { o.Store = store }
}

func withJobTimeout(d time.Duration) harnessOption {
	return func(o *engine.Options) { o.JobTimeout = d }
}

func withAutoSave(d time.Duration) harnessOption {
	return func(o *engine.Options) { o.AutoSaveInterval = d }
}

func withClock(now func() time.Time) harnessOption {
	return func(o *engine.Options) { o.Now = now }
}

func newHarness(t *testing.T, cfg *config.Config, runner engine.Runner, opts ...harnessOption) *harness {
	t.Helper()
	bus := events.NewBus(logging.NewNop())
	recorder := events.NewRecorder()
	bus.Subscribe("recorder", recorder)
	options := engine.Options{
		Config: cfg,
		Logger: logging.NewNop(),
		Runner: runner,
		Bus:    bus,
	}
	for _, opt := range opts {
		opt(&options)
	}
	eng, err := engine.New(options)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Stop)
	return &harness{engine: eng, recorder: recorder, cfg: cfg}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) submit(t *testing.T, prompt string, priority queue.Priority) string {
	t.Helper()
	id, err := h.engine.Submit(context.Background(), engine.Submission{
		Input: queue.Input{Prompt: prompt, ProductTypes: []string{"tshirt"}, Priority: priority},
	})
	if err != nil {
		t.Fatalf("Submit(%s): %v", prompt, err)
	}
	return id
}

func (h *harness) waitStatus(t *testing.T, id string, want queue.Status) *queue.Job {
	t.Helper()
	var job *queue.Job
	waitFor(t, fmt.Sprintf("job %s to be %s", id, want), func() bool {
		var ok bool
		job, ok = h.engine.Get(id)
		return ok && job.Status == want
	})
	return job
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// lifecycle filters a job's events down to status-changing ones.
func lifecycle(rec *events.Recorder, id string) []events.Name {
	var out []events.Name
	for _, name := range rec.ForJob(id) {
		if name != events.JobProgress {
			out = append(out, name)
		}
	}
	return out
}

func newTestConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, opts...)
}
