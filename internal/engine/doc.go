// Package engine owns the job lifecycle: it accepts submissions, orders
// pending jobs by priority and age, runs up to max_concurrent_jobs of them
// through the pipeline on a fixed worker pool, and routes failures through
// the retry policy.
//
// All job state lives in one map guarded by a single mutex. Workers run on
// private copies and commit results under the lock; a per-run generation
// token makes commits from abandoned (timed out or interrupted) runs no-ops.
// Lifecycle events are published on the event bus after the lock is
// released. Snapshots are written on a timer and at shutdown, and running
// jobs found in a restored snapshot are requeued.
package engine
