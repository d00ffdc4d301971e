package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"podforge/internal/events"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/queue"
	"podforge/internal/retry"
	"podforge/internal/services"
)

// dispatch promotes eligible pending jobs while worker slots are free.
func (e *Engine) dispatch(ctx context.Context) {
	for {
		e.mu.Lock()
		if e.stopping || len(e.running) >= e.maxConcurrent {
			e.mu.Unlock()
			return
		}
		job := e.pending.PopEligible(e.now())
		if job == nil {
			e.mu.Unlock()
			return
		}
		now := e.now().UTC()
		job.ResetForRun()
		e.setStatus(job, queue.StatusRunning)
		job.StartedAt = &now
		job.NextAttemptAt = nil
		job.UpdatedAt = now
		e.nextGen++
		gen := e.nextGen
		e.running[job.ID] = &run{gen: gen}
		private := job.Clone()
		started := job.Clone()
		e.queueEvent(events.Event{Name: events.JobStarted, Job: started})
		e.mu.Unlock()

		e.logger.Info("job started",
			logging.String(logging.FieldEventType, "job_started"),
			logging.String(logging.FieldJobID, job.ID),
			logging.Int(logging.FieldAttempt, started.Attempt),
			logging.String("priority", started.Input.Priority.String()),
		)
		e.flushEvents()

		select {
		case e.work <- task{job: private, gen: gen}:
		case <-ctx.Done():
			e.requeue(job.ID, gen)
			return
		}
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.work:
			e.execute(ctx, t)
		}
	}
}

// execute runs one attempt under the job watchdog. On timeout the attempt is
// abandoned: its context is cancelled and whatever it returns later is
// dropped by the generation check in finish.
func (e *Engine) execute(ctx context.Context, t task) {
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if e.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, e.jobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	jobCtx = services.WithJobID(jobCtx, t.job.ID)
	jobCtx = services.WithAttempt(jobCtx, t.job.Attempt)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("pipeline panic: %v", r)
			}
		}()
		done <- e.runner.Execute(jobCtx, t.job, e.progressFunc(t.gen))
	}()

	select {
	case err := <-done:
		if ctx.Err() != nil && err != nil {
			// Interrupted by shutdown; Stop requeues it.
			return
		}
		if err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			e.finish(t, nil, true)
			return
		}
		e.finish(t, err, false)
	case <-jobCtx.Done():
		if ctx.Err() == nil {
			e.finish(t, nil, true)
			return
		}
		grace := time.NewTimer(e.shutdownTimeout)
		defer grace.Stop()
		select {
		case err := <-done:
			if err == nil {
				e.finish(t, nil, false)
			}
		case <-grace.C:
			logging.WarnWithContext(e.logger, "job did not stop within shutdown timeout", "job_abandoned",
				logging.String(logging.FieldJobID, t.job.ID),
				logging.Duration("shutdown_timeout", e.shutdownTimeout),
				logging.String(logging.FieldImpact, "job requeued; its late result is discarded"),
			)
		}
	}
}

func (e *Engine) progressFunc(gen uint64) pipeline.ProgressFunc {
	return func(job *queue.Job) {
		e.mu.Lock()
		r, ok := e.running[job.ID]
		stored := e.jobs[job.ID]
		if !ok || r.gen != gen || stored == nil {
			e.mu.Unlock()
			return
		}
		e.absorb(stored, job)
		stored.UpdatedAt = e.now().UTC()
		e.queueEvent(events.Event{Name: events.JobProgress, Job: stored.Clone()})
		e.mu.Unlock()
		e.flushEvents()
	}
}

// absorb copies a worker's private progress into the stored job.
func (e *Engine) absorb(stored, private *queue.Job) {
	cp := private.Clone()
	stored.Progress = cp.Progress
	stored.Stage = cp.Stage
	stored.Result = cp.Result
	stored.Warnings = cp.Warnings
}

// finish commits an attempt's outcome if the run is still current.
func (e *Engine) finish(t task, execErr error, timedOut bool) {
	id := t.job.ID
	e.mu.Lock()
	r, ok := e.running[id]
	stored := e.jobs[id]
	if !ok || r.gen != t.gen || stored == nil {
		e.mu.Unlock()
		e.logger.Debug("discarding stale job result",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "stale_result_discarded"),
		)
		return
	}
	delete(e.running, id)
	if !timedOut {
		e.absorb(stored, t.job)
	}
	now := e.now().UTC()
	stored.UpdatedAt = now

	var ev events.Event
	var decision retry.Decision
	if execErr == nil && !timedOut {
		e.setStatus(stored, queue.StatusCompleted)
		stored.CompletedAt = &now
		stored.Error = ""
		stored.Progress = 100
		e.monitor.RecordCompletion(stored)
		ev = events.Event{Name: events.JobCompleted, Job: stored.Clone()}
	} else {
		err := execErr
		message := ""
		if timedOut {
			message = fmt.Sprintf("Timeout after %s", e.jobTimeout)
			err = services.Wrap(services.ErrTimeout, stored.Stage, "execute", message, nil)
		} else {
			message = err.Error()
		}
		stored.Error = message
		decision = e.policy.ShouldRetry(stored, err)
		if decision.Retry {
			e.setStatus(stored, queue.StatusPending)
			stored.Attempt++
			next := now.Add(decision.Delay)
			stored.NextAttemptAt = &next
			e.pending.Insert(stored)
			e.monitor.RecordRetry()
			ev = events.Event{Name: events.JobRetry, Job: stored.Clone(), Delay: decision.Delay, Message: message}
		} else {
			e.setStatus(stored, queue.StatusFailed)
			stored.CompletedAt = &now
			e.monitor.RecordCompletion(stored)
			ev = events.Event{Name: events.JobFailed, Job: stored.Clone(), Message: message}
		}
	}
	e.queueEvent(ev)
	e.mu.Unlock()

	switch ev.Name {
	case events.JobCompleted:
		succeeded, attempted := 0, 0
		if ev.Job.Result != nil {
			succeeded, attempted = ev.Job.Result.PublishCounts()
		}
		e.logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String(logging.FieldJobID, id),
			logging.Duration("job_duration", ev.Job.Duration()),
			logging.Int("listings_succeeded", succeeded),
			logging.Int("listings_attempted", attempted),
			logging.Int("warnings", len(ev.Job.Warnings)),
		)
	case events.JobRetry:
		logging.WarnWithContext(e.logger, "job attempt failed; retry scheduled", "job_retry_scheduled",
			logging.String(logging.FieldJobID, id),
			logging.Int(logging.FieldAttempt, ev.Job.Attempt),
			logging.String("error_class", string(decision.Class)),
			logging.Duration("delay", decision.Delay),
			logging.String("error_message", ev.Message),
			logging.String(logging.FieldImpact, "job returns to the pending queue after the delay"),
		)
	default:
		logging.ErrorWithContext(e.logger, "job failed", "job_failed",
			logging.String(logging.FieldJobID, id),
			logging.Int(logging.FieldAttempt, ev.Job.Attempt),
			logging.String("error_class", string(decision.Class)),
			logging.String("error_message", ev.Message),
			logging.String(logging.FieldErrorHint, hintForClass(decision.Class)),
		)
	}
	e.flushEvents()
	e.signal()
}

// requeue returns a dispatched job to pending without consuming an attempt.
func (e *Engine) requeue(id string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.running[id]
	stored := e.jobs[id]
	if !ok || r.gen != gen || stored == nil {
		return false
	}
	delete(e.running, id)
	e.demote(stored)
	return true
}

// requeueInterrupted demotes every job still marked running.
func (e *Engine) requeueInterrupted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id := range e.running {
		delete(e.running, id)
		if stored := e.jobs[id]; stored != nil {
			e.demote(stored)
			n++
		}
	}
	return n
}

func (e *Engine) demote(job *queue.Job) {
	e.setStatus(job, queue.StatusPending)
	job.ResetForRun()
	job.NextAttemptAt = nil
	job.UpdatedAt = e.now().UTC()
	e.pending.Insert(job)
}

// setStatus applies a lifecycle transition. Illegal transitions indicate a
// bug and are logged but not applied.
func (e *Engine) setStatus(job *queue.Job, to queue.Status) bool {
	if !queue.CanTransition(job.Status, to) {
		logging.ErrorWithContext(e.logger, "illegal job status transition", "illegal_transition",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("from", string(job.Status)),
			logging.String("to", string(to)),
		)
		return false
	}
	job.Status = to
	return true
}

func hintForClass(class retry.Class) string {
	switch class {
	case retry.ClassFatal:
		return "fix the job input or collaborator credentials, then retry the job"
	case retry.ClassPublish:
		return "inspect result.platforms for per-platform errors, then retry the job"
	default:
		return "retry attempts exhausted; inspect the job error and retry manually"
	}
}
