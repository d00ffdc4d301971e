// Package queue defines the job model shared by the engine, the state store,
// and the HTTP API.
//
// A Job moves through pending, running, and one of completed, failed, or
// cancelled. CanTransition encodes the legal moves: retries and crash
// recovery return running jobs to pending, and the explicit retry operation
// moves failed jobs back to pending. Terminal jobs are otherwise immutable.
//
// PendingIndex keeps pending jobs in dispatch order (priority descending,
// then creation time, then ID). Neither the index nor Job is safe for
// concurrent use; the engine owns both behind a single mutex and hands out
// Clone copies.
package queue
