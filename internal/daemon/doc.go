// Package daemon coordinates the long-running podforge process.
//
// It ties the engine and the HTTP API into a single lifecycle guarded by a
// flock-based lock so only one instance owns a state directory. The API is a
// chi router: job submission and inspection under /jobs, /health and
// /metrics for operators, and /assets for locally stored images when the
// local asset backend is in use.
//
// Keep orchestration logic here. Scheduling lives in engine and stage work
// in pipeline; the daemon focuses on startup, shutdown, and translating HTTP
// into engine calls.
package daemon
