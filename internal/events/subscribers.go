package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"podforge/internal/logging"
)

// LogSubscriber writes every event to a structured logger.
type LogSubscriber struct {
	logger *slog.Logger
}

// NewLogSubscriber builds a subscriber that logs under the "engine" component.
func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logging.NewComponentLogger(logger, "engine")}
}

// HandleEvent logs ev. Progress events are logged at debug.
func (s *LogSubscriber) HandleEvent(ctx context.Context, ev Event) error {
	attrs := []any{logging.String(logging.FieldEventType, string(ev.Name))}
	if ev.JobID != "" {
		attrs = append(attrs, logging.String(logging.FieldJobID, ev.JobID))
	}
	if job := ev.Job; job != nil {
		attrs = append(attrs,
			logging.String("status", string(job.Status)),
			logging.Int(logging.FieldAttempt, job.Attempt),
		)
		if job.Stage != "" {
			attrs = append(attrs, logging.String(logging.FieldStage, job.Stage))
		}
		if ev.Name == JobProgress {
			attrs = append(attrs, logging.Int("progress", job.Progress))
		}
		if job.Error != "" {
			attrs = append(attrs, logging.String("error", job.Error))
		}
	}
	if ev.Delay > 0 {
		attrs = append(attrs, logging.Duration("delay", ev.Delay))
	}
	msg := string(ev.Name)
	if ev.Message != "" {
		msg = ev.Message
	}
	switch ev.Name {
	case JobProgress:
		s.logger.DebugContext(ctx, msg, attrs...)
	case JobFailed:
		s.logger.WarnContext(ctx, msg, attrs...)
	default:
		s.logger.InfoContext(ctx, msg, attrs...)
	}
	return nil
}

// Recorder keeps every event in memory. It backs tests and polling clients.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// HandleEvent records ev.
func (r *Recorder) HandleEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ForJob returns the event names recorded for one job, in order.
func (r *Recorder) ForJob(id string) []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Name
	for _, ev := range r.events {
		if ev.JobID == id {
			out = append(out, ev.Name)
		}
	}
	return out
}

// Since returns events recorded after t.
func (r *Recorder) Since(t time.Time) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Time.After(t) {
			out = append(out, ev)
		}
	}
	return out
}

// WaitFor blocks until match returns true for some recorded event or ctx ends.
func (r *Recorder) WaitFor(ctx context.Context, match func(Event) bool) (Event, bool) {
	for {
		r.mu.Lock()
		for _, ev := range r.events {
			if match(ev) {
				r.mu.Unlock()
				return ev, true
			}
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return Event{}, false
		case <-r.notify:
		case <-time.After(20 * time.Millisecond):
		}
	}
}
