package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"podforge/internal/events"
	"podforge/internal/queue"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := events.NewBus(nil)
	var order []string
	bus.Subscribe("first", events.SubscriberFunc(func(context.Context, events.Event) error {
		order = append(order, "first")
		return nil
	}))
	bus.Subscribe("second", events.SubscriberFunc(func(context.Context, events.Event) error {
		order = append(order, "second")
		return nil
	}))
	bus.Publish(context.Background(), events.Event{Name: events.JobSubmitted, JobID: "a"})
	if strings.Join(order, ",") != "first,second" {
		t.Fatalf("order = %v", order)
	}
}

func TestPublishIsolatesFailingSubscribers(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewBus(slog.New(slog.NewJSONHandler(&buf, nil)))
	rec := events.NewRecorder()
	bus.Subscribe("erroring", events.SubscriberFunc(func(context.Context, events.Event) error {
		return errors.New("boom")
	}))
	bus.Subscribe("panicking", events.SubscriberFunc(func(context.Context, events.Event) error {
		panic("kaboom")
	}))
	bus.Subscribe("recorder", rec)

	bus.Publish(context.Background(), events.Event{Name: events.JobFailed, Job: &queue.Job{ID: "job-1"}})

	got := rec.Events()
	if len(got) != 1 || got[0].JobID != "job-1" {
		t.Fatalf("recorder did not receive event: %+v", got)
	}
	if got[0].Time.IsZero() {
		t.Fatal("expected publish time to be stamped")
	}
	logs := buf.String()
	if !strings.Contains(logs, "boom") || !strings.Contains(logs, "panic: kaboom") {
		t.Fatalf("expected both failures logged, got %s", logs)
	}
}

func TestRecorderForJobAndWait(t *testing.T) {
	rec := events.NewRecorder()
	bus := events.NewBus(nil)
	bus.Subscribe("recorder", rec)

	go func() {
		bus.Publish(context.Background(), events.Event{Name: events.JobSubmitted, JobID: "a"})
		bus.Publish(context.Background(), events.Event{Name: events.JobSubmitted, JobID: "b"})
		bus.Publish(context.Background(), events.Event{Name: events.JobCompleted, JobID: "a"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := rec.WaitFor(ctx, func(ev events.Event) bool { return ev.Name == events.JobCompleted }); !ok {
		t.Fatal("timed out waiting for completion")
	}
	names := rec.ForJob("a")
	if len(names) != 2 || names[0] != events.JobSubmitted || names[1] != events.JobCompleted {
		t.Fatalf("ForJob(a) = %v", names)
	}
}

func TestLogSubscriberWritesEventType(t *testing.T) {
	var buf bytes.Buffer
	sub := events.NewLogSubscriber(slog.New(slog.NewJSONHandler(&buf, nil)))
	job := &queue.Job{ID: "j", Status: queue.StatusPending, Attempt: 1}
	if err := sub.HandleEvent(context.Background(), events.Event{Name: events.JobRetry, JobID: "j", Job: job, Delay: 2 * time.Second}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, fragment := range []string{`"event_type":"job:retry"`, `"job_id":"j"`, `"delay"`} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %s in %s", fragment, out)
		}
	}
}
