package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"podforge/internal/config"
	"podforge/internal/events"
	"podforge/internal/notifications"
	"podforge/internal/queue"
)

type captured struct {
	title, body, tags, priority string
}

func newServer(t *testing.T) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNewReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	n := notifications.New(&cfg)
	if err := n.HandleEvent(context.Background(), events.Event{Name: events.JobCompleted}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifierFormatsEvents(t *testing.T) {
	tests := []struct {
		name           string
		event          events.Event
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name: "completed",
			event: events.Event{Name: events.JobCompleted, JobID: "0123456789abcdef", Job: &queue.Job{
				Result: &queue.Result{Platforms: []queue.PlatformOutcome{
					{Platform: "printify", ProductType: "tshirt", Success: true, URL: "https://example/p/1"},
					{Platform: "shopify", ProductType: "tshirt", Success: false},
				}},
			}},
			expectTitle: "podforge - Job Complete",
			expectBody:  "✅ Job 01234567 completed: 1/2 listings\nprintify tshirt: https://example/p/1",
			expectTags:  "podforge,job,completed",
		},
		{
			name:           "failed",
			event:          events.Event{Name: events.JobFailed, JobID: "abc", Job: &queue.Job{Error: "Timeout after 5s"}},
			expectTitle:    "podforge - Job Failed",
			expectBody:     "❌ Job abc failed: Timeout after 5s",
			expectTags:     "podforge,job,failed",
			expectPriority: "high",
		},
		{
			name:        "retry",
			event:       events.Event{Name: events.JobRetry, JobID: "abc", Delay: 1500 * time.Millisecond, Job: &queue.Job{Attempt: 2, Error: "rate limited"}},
			expectTitle: "podforge - Retrying",
			expectBody:  "🔁 Job abc retry 2 in 1.5s: rate limited",
			expectTags:  "podforge,job,retry",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, ch := newServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			cfg.Notifications.JobCompleted = true
			cfg.Notifications.JobFailed = true
			cfg.Notifications.JobRetry = true

			if err := notifications.New(&cfg).HandleEvent(context.Background(), tc.event); err != nil {
				t.Fatalf("HandleEvent: %v", err)
			}
			got := <-ch
			if got.title != tc.expectTitle || got.body != tc.expectBody || got.tags != tc.expectTags || got.priority != tc.expectPriority {
				t.Fatalf("unexpected request %+v", got)
			}
		})
	}
}

func TestNotifierRespectsToggles(t *testing.T) {
	srv, ch := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.JobCompleted = false

	n := notifications.New(&cfg)
	for _, name := range []events.Name{events.JobCompleted, events.JobSubmitted, events.JobProgress} {
		if err := n.HandleEvent(context.Background(), events.Event{Name: name}); err != nil {
			t.Fatalf("HandleEvent(%s): %v", name, err)
		}
	}
	select {
	case got := <-ch:
		t.Fatalf("expected no request, got %+v", got)
	default:
	}
}

func TestNotifierReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	err := notifications.New(&cfg).Test(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
