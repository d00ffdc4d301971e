package stage

import (
	"time"

	"podforge/internal/queue"
)

// Record appends a stage summary to the job's result, creating the result
// if needed.
func Record(job *queue.Job, name, status, detail string, started time.Time) {
	if job.Result == nil {
		job.Result = &queue.Result{}
	}
	job.Result.Stages = append(job.Result.Stages, queue.StageOutput{
		Name:        name,
		Status:      status,
		Detail:      detail,
		StartedAt:   started.UTC(),
		CompletedAt: time.Now().UTC(),
	})
}

// EnsureResult returns the job's result, allocating it on first use.
func EnsureResult(job *queue.Job) *queue.Result {
	if job.Result == nil {
		job.Result = &queue.Result{}
	}
	return job.Result
}
