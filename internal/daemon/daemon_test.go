package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/daemon"
	"podforge/internal/engine"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/queue"
	"podforge/internal/stage"
	"podforge/internal/testsupport"
)

type noopRunner struct{}

func (noopRunner) Execute(context.Context, *queue.Job, pipeline.ProgressFunc) error { return nil }
func (noopRunner) HealthCheck(context.Context) []stage.Health {
	return []stage.Health{stage.Healthy("noop")}
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStateStore(t, cfg)
	eng, err := engine.New(engine.Options{Config: cfg, Runner: noopRunner{}, Store: store, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, eng, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if strings.HasSuffix(d.Addr(), ":0") {
		t.Fatalf("expected resolved listen address, got %s", d.Addr())
	}

	client := api.NewClient(d.Addr(), "")
	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	health, err := client.Health(reqCtx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Running {
		t.Fatalf("expected running engine, got %+v", health)
	}
	submitted, err := client.Submit(reqCtx, api.SubmitRequest{Prompt: "lighthouse at dusk", ProductTypes: []string{"poster"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := client.Get(reqCtx, submitted.JobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status == string(queue.StatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, last status %s", job.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to stop")
	}
	if _, err := client.Health(context.Background()); err == nil {
		t.Fatal("expected API to be unreachable after stop")
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	other := *cfg
	other.API.Bind = "127.0.0.1:0"
	second := newDaemon(t, &other)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
	if second.Running() {
		t.Fatal("second daemon must not run")
	}
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := daemon.New(testsupport.NewConfig(t), nil, nil, nil); err == nil {
		t.Fatal("expected error without engine")
	}
}
