package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"podforge/internal/events"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// Submission is one job request.
type Submission struct {
	Type  queue.Type
	Input queue.Input
}

// Submit validates and enqueues a job, returning its ID.
func (e *Engine) Submit(ctx context.Context, sub Submission) (string, error) {
	job, err := e.newJob(sub)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.enqueue(job)
	snap := job.Clone()
	e.queueEvent(events.Event{Name: events.JobSubmitted, Job: snap})
	e.mu.Unlock()

	e.logSubmitted(ctx, snap)
	e.flushEvents()
	e.signal()
	return snap.ID, nil
}

// SubmitBatch validates every submission before enqueuing any of them.
func (e *Engine) SubmitBatch(ctx context.Context, subs []Submission) ([]string, error) {
	if len(subs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate batch", "at least one job is required", nil)
	}
	jobs := make([]*queue.Job, 0, len(subs))
	var problems []error
	for i, sub := range subs {
		job, err := e.newJob(sub)
		if err != nil {
			problems = append(problems, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		jobs = append(jobs, job)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	ids := make([]string, len(jobs))
	snaps := make([]*queue.Job, len(jobs))
	e.mu.Lock()
	for i, job := range jobs {
		e.enqueue(job)
		ids[i] = job.ID
		snaps[i] = job.Clone()
		e.queueEvent(events.Event{Name: events.JobSubmitted, Job: snaps[i]})
	}
	e.mu.Unlock()

	for _, snap := range snaps {
		e.logSubmitted(ctx, snap)
	}
	e.flushEvents()
	e.signal()
	return ids, nil
}

func (e *Engine) newJob(sub Submission) (*queue.Job, error) {
	jobType, ok := queue.ParseType(string(sub.Type))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate input", fmt.Sprintf("unknown job type %q", sub.Type), nil)
	}
	in := sub.Input
	in.ProductTypes = slices.Clone(in.ProductTypes)
	in.Platforms = slices.Clone(in.Platforms)
	if in.ThemeConfig != nil {
		theme := *in.ThemeConfig
		in.ThemeConfig = &theme
	}
	in.Normalize()
	if len(in.ProductTypes) == 0 {
		in.ProductTypes = slices.Clone(e.cfg.Pipeline.DefaultProductTypes)
	}
	if err := queue.ValidateInput(in); err != nil {
		return nil, err
	}
	return &queue.Job{
		ID:          newJobID(),
		Type:        jobType,
		Input:       in,
		Status:      queue.StatusPending,
		MaxAttempts: e.policy.MaxRetries,
	}, nil
}

// enqueue stamps and indexes a new job. CreatedAt is kept strictly
// increasing so submission order survives coarse clocks. Caller holds e.mu.
func (e *Engine) enqueue(job *queue.Job) {
	now := e.now().UTC()
	if !now.After(e.lastCreated) {
		now = e.lastCreated.Add(time.Nanosecond)
	}
	e.lastCreated = now
	job.CreatedAt = now
	job.UpdatedAt = now
	e.jobs[job.ID] = job
	e.pending.Insert(job)
}

func (e *Engine) logSubmitted(ctx context.Context, job *queue.Job) {
	logging.WithContext(ctx, e.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("type", string(job.Type)),
		logging.String("priority", job.Input.Priority.String()),
		logging.Int("product_types", len(job.Input.ProductTypes)),
	)
}

// Get returns a copy of the job.
func (e *Engine) Get(id string) (*queue.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// List returns copies of jobs with the given status (all when empty) and the
// total number matched before limit is applied. Pending jobs come back in
// dispatch order, everything else newest first.
func (e *Engine) List(status queue.Status, limit int) ([]*queue.Job, int) {
	e.mu.Lock()
	out := make([]*queue.Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.Clone())
	}
	e.mu.Unlock()

	if status == queue.StatusPending {
		queue.SortForDispatch(out)
	} else {
		slices.SortFunc(out, func(a, b *queue.Job) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			if a.ID < b.ID {
				return -1
			}
			return 1
		})
	}
	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total
}

// Cancel moves a pending job to cancelled. It returns false, with no state
// change, for jobs in any other status.
func (e *Engine) Cancel(id string) (bool, error) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return false, notFound("cancel", id)
	}
	if job.Status != queue.StatusPending {
		e.mu.Unlock()
		return false, nil
	}
	e.pending.Remove(id)
	e.setStatus(job, queue.StatusCancelled)
	now := e.now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.NextAttemptAt = nil
	e.monitor.RecordCancelled()
	e.queueEvent(events.Event{Name: events.JobCancelled, Job: job.Clone()})
	e.mu.Unlock()

	e.logger.Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldJobID, id),
	)
	e.flushEvents()
	return true, nil
}

// Retry moves a failed job back to pending with its attempt counter, error
// and result cleared. It returns false for jobs that are not failed.
func (e *Engine) Retry(id string) (bool, error) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return false, notFound("retry", id)
	}
	if job.Status != queue.StatusFailed {
		e.mu.Unlock()
		return false, nil
	}
	e.setStatus(job, queue.StatusPending)
	job.ResetForRun()
	job.Attempt = 0
	job.NextAttemptAt = nil
	job.UpdatedAt = e.now().UTC()
	e.pending.Insert(job)
	e.queueEvent(events.Event{Name: events.JobSubmitted, Job: job.Clone(), Message: "manual retry"})
	e.mu.Unlock()

	e.logger.Info("job requeued by operator",
		logging.String(logging.FieldEventType, "job_manual_retry"),
		logging.String(logging.FieldJobID, id),
	)
	e.flushEvents()
	e.signal()
	return true, nil
}

// ClearOlderThan evicts terminal jobs that finished more than age ago and
// returns how many were removed.
func (e *Engine) ClearOlderThan(age time.Duration) int {
	cutoff := e.now().Add(-age)
	e.mu.Lock()
	removed := 0
	for id, job := range e.jobs {
		if !job.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		delete(e.jobs, id)
		removed++
	}
	e.mu.Unlock()

	if removed > 0 {
		e.logger.Info("cleared finished jobs",
			logging.String(logging.FieldEventType, "jobs_cleared"),
			logging.Int("count", removed),
			logging.Duration("older_than", age),
		)
	}
	return removed
}

func notFound(operation, id string) error {
	return services.Wrap(services.ErrNotFound, "engine", operation, fmt.Sprintf("job %s not found", id), nil)
}
