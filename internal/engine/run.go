package engine

import (
	"context"
	"errors"
	"time"

	"podforge/internal/events"
	"podforge/internal/logging"
)

// Start restores persisted state (once), then launches the dispatch loop,
// the worker pool and the autosave and metrics timers.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.Restore(ctx); err != nil {
		logging.WarnWithContext(e.logger, "state restore failed; starting with an empty queue", "state_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [state] backend settings and the snapshot file"),
			logging.String(logging.FieldImpact, "jobs from the previous run are not visible"),
		)
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true
	e.stopping = false
	e.workers.Add(e.maxConcurrent)
	e.loops.Add(3)
	e.mu.Unlock()
	e.monitor.MarkStarted()

	for range e.maxConcurrent {
		go e.worker(runCtx)
	}
	go e.dispatchLoop(runCtx)
	go e.autoSaveLoop(runCtx)
	go e.metricsLoop(runCtx)

	e.logger.Info("engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.Int("max_concurrent_jobs", e.maxConcurrent),
		logging.Duration("job_timeout", e.jobTimeout),
	)
	e.publish(events.Event{Name: events.EngineStarted, Message: "engine started"})
	e.signal()
	return nil
}

// Stop cancels the loops, waits for workers (each running job gets up to the
// shutdown timeout to finish), requeues interrupted jobs and writes a final
// snapshot.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.started = false
	e.stopping = true
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.loops.Wait()
	e.workers.Wait()

	if n := e.requeueInterrupted(); n > 0 {
		e.logger.Info("requeued interrupted jobs",
			logging.String(logging.FieldEventType, "jobs_requeued"),
			logging.Int("count", n),
		)
	}

	saveCtx, cancelSave := context.WithTimeout(context.Background(), max(e.shutdownTimeout, 5*time.Second))
	_ = e.Save(saveCtx)
	cancelSave()

	e.mu.Lock()
	e.stopping = false
	e.mu.Unlock()

	e.logger.Info("engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
	e.publish(events.Event{Name: events.EngineShutdown, Message: "engine stopped"})
}

// Running reports whether Start has been called without a matching Stop.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.loops.Done()
	timer := time.NewTimer(e.dispatchInterval)
	defer timer.Stop()

	for {
		e.monitor.Heartbeat()
		e.dispatch(ctx)
		timer.Reset(e.nextWait())
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// nextWait is the dispatch interval, shortened when a retry delay expires
// sooner.
func (e *Engine) nextWait() time.Duration {
	e.mu.Lock()
	next := e.pending.NextWake()
	e.mu.Unlock()
	wait := e.dispatchInterval
	if next.IsZero() {
		return wait
	}
	if d := next.Sub(e.now()); d > 0 && d < wait {
		wait = d
	}
	return wait
}

func (e *Engine) autoSaveLoop(ctx context.Context) {
	defer e.loops.Done()
	if e.store == nil || e.autoSaveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.autoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Save(ctx)
		}
	}
}

func (e *Engine) metricsLoop(ctx context.Context) {
	defer e.loops.Done()
	ticker := time.NewTicker(e.metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshGauges()
		}
	}
}
