package queue

import (
	"slices"
	"time"
)

// Before reports whether a should dispatch ahead of b: higher priority first,
// then older createdAt, then lower ID so the order is total.
func Before(a, b *Job) bool {
	if a.Input.Priority != b.Input.Priority {
		return a.Input.Priority > b.Input.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func compareJobs(a, b *Job) int {
	switch {
	case a.ID == b.ID:
		return 0
	case Before(a, b):
		return -1
	default:
		return 1
	}
}

// PendingIndex keeps pending jobs in dispatch order. It is not safe for
// concurrent use; the owner guards it with the same lock as the job map.
type PendingIndex struct {
	jobs []*Job
}

// Len returns the number of indexed jobs.
func (p *PendingIndex) Len() int {
	return len(p.jobs)
}

// Insert adds job in dispatch order. Priority and CreatedAt must not change
// while the job is indexed.
func (p *PendingIndex) Insert(job *Job) {
	if job == nil {
		return
	}
	idx, found := slices.BinarySearchFunc(p.jobs, job, compareJobs)
	if found {
		p.jobs[idx] = job
		return
	}
	p.jobs = slices.Insert(p.jobs, idx, job)
}

// Remove drops the job with the given ID, reporting whether it was indexed.
func (p *PendingIndex) Remove(id string) bool {
	for i, job := range p.jobs {
		if job.ID == id {
			p.jobs = slices.Delete(p.jobs, i, i+1)
			return true
		}
	}
	return false
}

// PopEligible removes and returns the first job whose retry delay has
// elapsed at now, or nil when none is eligible.
func (p *PendingIndex) PopEligible(now time.Time) *Job {
	for i, job := range p.jobs {
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		p.jobs = slices.Delete(p.jobs, i, i+1)
		return job
	}
	return nil
}

// NextWake returns the earliest pending retry time, or the zero time when no
// job is waiting on a delay.
func (p *PendingIndex) NextWake() time.Time {
	var earliest time.Time
	for _, job := range p.jobs {
		if job.NextAttemptAt == nil {
			continue
		}
		if earliest.IsZero() || job.NextAttemptAt.Before(earliest) {
			earliest = *job.NextAttemptAt
		}
	}
	return earliest
}

// IDs returns the indexed job IDs in dispatch order.
func (p *PendingIndex) IDs() []string {
	out := make([]string, len(p.jobs))
	for i, job := range p.jobs {
		out[i] = job.ID
	}
	return out
}

// SortForDispatch orders jobs in place using the dispatch order.
func SortForDispatch(jobs []*Job) {
	slices.SortFunc(jobs, compareJobs)
}
