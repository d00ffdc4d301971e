// Package api defines the wire-format types for the podforge HTTP API and a
// client for it. It translates engine models into transport-friendly DTOs
// so the CLI and other consumers do not couple to internal types.
//
// # Key Types
//
// SubmitRequest: a job submission as accepted by POST /jobs.
//
// Job: transport representation of a job with RFC3339 timestamps, the
// priority as a level name, and the structured result.
//
// ErrorResponse: the {error:{code,message}} envelope returned on failure.
//
// # Converters
//
// SubmitRequest.Submission: request -> engine.Submission.
//
// FromJob / FromJobs: queue.Job -> Job.
//
// CodeForError: services marker -> envelope code and HTTP status.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Priority is rendered as "low", "normal", "high" or the number for other
// levels, and accepted in either form.
package api
