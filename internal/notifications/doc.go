// Package notifications pushes job and engine milestones to ntfy.
//
// The notifier subscribes to the engine's event bus and degrades to a no-op
// when no topic is configured. Per-event toggles in the [notifications]
// config section select which milestones are pushed; delivery failures are
// returned to the bus, which logs them without affecting the job.
package notifications
