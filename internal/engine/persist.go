package engine

import (
	"context"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/statestore"
)

// Restore loads the last snapshot into the engine. Jobs that were running
// when it was taken return to pending. It runs at most once; later calls
// return 0. Jobs already known to the engine are kept as they are.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.restored || e.store == nil {
		e.restored = true
		e.mu.Unlock()
		return 0, nil
	}
	e.restored = true
	e.mu.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}
	demoted := statestore.Prepare(snap, e.now())

	e.mu.Lock()
	restored := 0
	for id, job := range snap.Jobs {
		if job == nil {
			continue
		}
		if job.ID == "" {
			job.ID = id
		}
		if _, exists := e.jobs[job.ID]; exists {
			continue
		}
		e.jobs[job.ID] = job
		if job.Status == queue.StatusPending {
			e.pending.Insert(job)
		}
		if job.CreatedAt.After(e.lastCreated) {
			e.lastCreated = job.CreatedAt
		}
		restored++
	}
	e.mu.Unlock()

	e.logger.Info("restored queue state",
		logging.String(logging.FieldEventType, "state_restored"),
		logging.Int("jobs", restored),
		logging.Int("requeued_running", len(demoted)),
		logging.Time("saved_at", snap.SavedAt),
	)
	return restored, nil
}

// Save writes a snapshot of every job. Failures are logged and returned but
// never affect the engine.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap := e.Snapshot()
	if err := e.store.Save(ctx, snap); err != nil {
		logging.WarnWithContext(e.logger, "state snapshot failed", "state_save_failed",
			logging.Error(err),
			logging.Int("jobs", len(snap.Jobs)),
			logging.String(logging.FieldErrorHint, "check the [state] backend and disk space"),
			logging.String(logging.FieldImpact, "a crash now would lose changes since the last snapshot"),
		)
		return err
	}
	e.logger.Debug("state snapshot saved", logging.Int("jobs", len(snap.Jobs)))
	return nil
}

// Snapshot captures a deep copy of every job under the engine lock.
func (e *Engine) Snapshot() *statestore.Snapshot {
	e.mu.Lock()
	jobs := make(map[string]*queue.Job, len(e.jobs))
	for id, job := range e.jobs {
		jobs[id] = job.Clone()
	}
	e.mu.Unlock()
	return statestore.NewSnapshot(jobs, e.now())
}
