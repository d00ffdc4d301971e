package statestore

import (
	"time"

	"podforge/internal/queue"
)

// Prepare readies a loaded snapshot for a fresh engine: jobs that were
// running are demoted to pending with their progress and partial result
// cleared, and attempt counters are clamped to the job's maximum. It
// returns the IDs of demoted jobs.
func Prepare(snap *Snapshot, now time.Time) []string {
	if snap == nil {
		return nil
	}
	var demoted []string
	for _, job := range snap.Jobs {
		if job.MaxAttempts > 0 && job.Attempt > job.MaxAttempts {
			job.Attempt = job.MaxAttempts
		}
		if job.Status != queue.StatusRunning {
			continue
		}
		job.Status = queue.StatusPending
		job.ResetForRun()
		job.NextAttemptAt = nil
		job.UpdatedAt = now.UTC()
		demoted = append(demoted, job.ID)
	}
	return demoted
}
