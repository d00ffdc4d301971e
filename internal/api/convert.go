package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"podforge/internal/engine"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// Submission converts the request to an engine submission. An unknown job
// type is a validation error; the remaining fields are validated by the
// engine.
func (r SubmitRequest) Submission() (engine.Submission, error) {
	jobType, ok := queue.ParseType(r.Type)
	if !ok {
		return engine.Submission{}, services.Wrap(services.ErrValidation, "submit", "parse type",
			fmt.Sprintf("unknown job type %q (want %s or %s)", r.Type, queue.TypeFullPipeline, queue.TypeGenerateOnly), nil)
	}
	priority := queue.PriorityNormal
	if r.Priority != nil {
		priority = *r.Priority
	}
	return engine.Submission{
		Type: jobType,
		Input: queue.Input{
			Prompt:       r.Prompt,
			ThemeConfig:  r.ThemeConfig,
			ProductTypes: r.ProductTypes,
			Platforms:    r.Platforms,
			AutoPublish:  r.AutoPublish,
			Priority:     priority,
		},
	}, nil
}

// FromJob converts a job to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:          job.ID,
		Type:        string(job.Type),
		Status:      string(job.Status),
		Priority:    job.Input.Priority.String(),
		Input:       job.Input,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		Progress:    job.Progress,
		Stage:       job.Stage,
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
		Result:      job.Result,
		Error:       job.Error,
		Warnings:    job.Warnings,
	}
	if job.StartedAt != nil {
		dto.StartedAt = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = formatTime(*job.CompletedAt)
	}
	if job.NextAttemptAt != nil {
		dto.NextAttemptAt = formatTime(*job.NextAttemptAt)
	}
	return dto
}

// FromJobs converts a slice of jobs. The result is never nil so it encodes
// as an empty JSON array.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// CodeForError maps a classified error to an envelope code and HTTP status.
func CodeForError(err error) (string, int) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return CodeValidation, http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, services.ErrAuthorization):
		return CodeUnauthorized, http.StatusUnauthorized
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
