package api

import (
	"podforge/internal/queue"
	"podforge/internal/stage"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Error envelope codes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidState = "INVALID_STATE"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
)

// SubmitRequest is the body of POST /jobs and one entry of POST /jobs/batch.
type SubmitRequest struct {
	Type         string             `json:"type,omitempty"`
	Prompt       string             `json:"prompt,omitempty"`
	ThemeConfig  *queue.ThemeConfig `json:"themeConfig,omitempty"`
	ProductTypes []string           `json:"productTypes"`
	Platforms    []string           `json:"platforms,omitempty"`
	AutoPublish  bool               `json:"autoPublish,omitempty"`
	Priority     *queue.Priority    `json:"priority,omitempty"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// BatchRequest is the body of POST /jobs/batch.
type BatchRequest struct {
	Jobs []SubmitRequest `json:"jobs"`
}

// BatchResponse lists accepted job IDs in request order.
type BatchResponse struct {
	JobIDs []string `json:"jobIds"`
}

// Job describes a job in a transport-friendly format.
type Job struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Status        string        `json:"status"`
	Priority      string        `json:"priority"`
	Input         queue.Input   `json:"input"`
	Attempt       int           `json:"attempt"`
	MaxAttempts   int           `json:"maxAttempts"`
	Progress      int           `json:"progress"`
	Stage         string        `json:"stage,omitempty"`
	CreatedAt     string        `json:"createdAt,omitempty"`
	UpdatedAt     string        `json:"updatedAt,omitempty"`
	StartedAt     string        `json:"startedAt,omitempty"`
	CompletedAt   string        `json:"completedAt,omitempty"`
	NextAttemptAt string        `json:"nextAttemptAt,omitempty"`
	Result        *queue.Result `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// JobListResponse wraps a page of jobs and the total matching count.
type JobListResponse struct {
	Total int   `json:"total"`
	Jobs  []Job `json:"jobs"`
}

// ActionResponse is returned by cancel and retry.
type ActionResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// CleanupRequest is the body of POST /jobs/cleanup.
type CleanupRequest struct {
	OlderThanMs int64 `json:"olderThanMs"`
}

// CleanupResponse reports how many jobs were evicted.
type CleanupResponse struct {
	JobsCleared int `json:"jobsCleared"`
}

// HealthResponse is served by GET /health.
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Running       bool           `json:"running"`
	Detail        string         `json:"detail,omitempty"`
	Stages        []stage.Health `json:"stages,omitempty"`
}

// ErrorBody is the payload of ErrorResponse.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
