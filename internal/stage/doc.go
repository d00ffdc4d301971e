// Package stage defines the contract shared by pipeline stages: a Handler
// with Prepare, Execute, and HealthCheck, plus helpers for recording
// per-stage outputs on a job.
package stage
