package engine

import (
	"context"
	"time"

	"podforge/internal/metrics"
	"podforge/internal/queue"
	"podforge/internal/stage"
)

// Health is the engine health report served by /health.
type Health struct {
	Healthy bool           `json:"healthy"`
	Running bool           `json:"running"`
	Uptime  time.Duration  `json:"uptime"`
	Detail  string         `json:"detail,omitempty"`
	Stages  []stage.Health `json:"stages,omitempty"`
}

// Counts returns the number of jobs per status.
func (e *Engine) Counts() map[queue.Status]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countsLocked()
}

func (e *Engine) countsLocked() map[queue.Status]int {
	counts := make(map[queue.Status]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		counts[status] = 0
	}
	for _, job := range e.jobs {
		counts[job.Status]++
	}
	return counts
}

func (e *Engine) refreshGauges() {
	e.mu.Lock()
	counts := e.countsLocked()
	depth := e.pending.Len()
	running := len(e.running)
	e.mu.Unlock()
	e.monitor.UpdateGauges(depth, running, counts)
}

// Metrics recomputes the queue gauges and returns the current snapshot.
func (e *Engine) Metrics() metrics.Snapshot {
	e.refreshGauges()
	return e.monitor.Snapshot()
}

// Health combines the monitor's predicate with the engine run state. Stage
// readiness is reported but does not affect Healthy.
func (e *Engine) Health(ctx context.Context) Health {
	running := e.Running()
	h := Health{
		Healthy: running && e.monitor.IsHealthy(),
		Running: running,
		Uptime:  e.monitor.Uptime(),
		Stages:  e.runner.HealthCheck(ctx),
	}
	switch {
	case !running:
		h.Detail = "engine not running"
	case !h.Healthy:
		h.Detail = "dispatch loop stalled or failure rate above threshold"
	default:
		if ok, detail := stage.Summarize(h.Stages); !ok {
			h.Detail = detail
		}
	}
	return h
}
