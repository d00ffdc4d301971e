package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
)

// Name identifies a lifecycle event.
type Name string

const (
	JobSubmitted   Name = "job:submitted"
	JobStarted     Name = "job:started"
	JobProgress    Name = "job:progress"
	JobCompleted   Name = "job:completed"
	JobFailed      Name = "job:failed"
	JobRetry       Name = "job:retry"
	JobCancelled   Name = "job:cancelled"
	EngineStarted  Name = "engine:started"
	EngineShutdown Name = "engine:shutdown"
)

// Event is one lifecycle notification. Job, when set, is a private copy.
type Event struct {
	Name    Name
	Time    time.Time
	JobID   string
	Job     *queue.Job
	Delay   time.Duration
	Message string
}

// Subscriber receives published events.
type Subscriber interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type registration struct {
	name string
	sub  Subscriber
}

// Bus is an ordered, synchronous fan-out. The zero value is not usable; call NewBus.
type Bus struct {
	mu     sync.RWMutex
	subs   []registration
	logger *slog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{logger: logging.NewComponentLogger(logger, "events")}
}

// Subscribe appends sub to the delivery list under a label used in logs.
func (b *Bus) Subscribe(name string, sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, registration{name: name, sub: sub})
	b.mu.Unlock()
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every subscriber in order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.JobID == "" && ev.Job != nil {
		ev.JobID = ev.Job.ID
	}
	b.mu.RLock()
	subs := make([]registration, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, reg := range subs {
		if err := b.deliver(ctx, reg, ev); err != nil {
			logging.WarnWithContext(b.logger, "event subscriber failed", "subscriber_failed",
				logging.String("subscriber", reg.name),
				logging.String("event", string(ev.Name)),
				logging.String(logging.FieldJobID, ev.JobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "subscriber missed this event; other subscribers unaffected"),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, reg registration, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return reg.sub.HandleEvent(ctx, ev)
}
