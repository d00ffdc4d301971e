package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/events"
	"podforge/internal/queue"
)

const userAgent = "podforge/0.1.0"

// Notifier turns engine events into ntfy push notifications. It implements
// events.Subscriber.
type Notifier interface {
	events.Subscriber
	Test(ctx context.Context) error
}

// New builds a notifier backed by ntfy when a topic is configured. Without a
// topic a no-op notifier is returned.
func New(cfg *config.Config) Notifier {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopNotifier{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyNotifier{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		toggles:  cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyNotifier struct {
	endpoint string
	client   *http.Client
	toggles  config.Notifications
}

// HandleEvent sends a notification for the event kinds enabled in config.
// Submissions, starts, and progress updates are never pushed.
func (n *ntfyNotifier) HandleEvent(ctx context.Context, ev events.Event) error {
	data, ok := n.format(ev)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyNotifier) format(ev events.Event) (payload, bool) {
	switch ev.Name {
	case events.JobCompleted:
		if !n.toggles.JobCompleted {
			return payload{}, false
		}
		return completedPayload(ev), true
	case events.JobFailed:
		if !n.toggles.JobFailed {
			return payload{}, false
		}
		return payload{
			title:    "podforge - Job Failed",
			message:  fmt.Sprintf("❌ Job %s failed: %s", shortID(ev.JobID), jobError(ev.Job)),
			tags:     []string{"podforge", "job", "failed"},
			priority: "high",
		}, true
	case events.JobRetry:
		if !n.toggles.JobRetry {
			return payload{}, false
		}
		attempt := 0
		if ev.Job != nil {
			attempt = ev.Job.Attempt
		}
		return payload{
			title:   "podforge - Retrying",
			message: fmt.Sprintf("🔁 Job %s retry %d in %s: %s", shortID(ev.JobID), attempt, ev.Delay.Round(time.Millisecond), jobError(ev.Job)),
			tags:    []string{"podforge", "job", "retry"},
		}, true
	case events.EngineStarted, events.EngineShutdown:
		if !n.toggles.Engine {
			return payload{}, false
		}
		verb := "started"
		if ev.Name == events.EngineShutdown {
			verb = "stopped"
		}
		message := "Engine " + verb
		if ev.Message != "" {
			message = fmt.Sprintf("%s: %s", message, ev.Message)
		}
		return payload{
			title:    "podforge - Engine",
			message:  message,
			tags:     []string{"podforge", "engine", verb},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func completedPayload(ev events.Event) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Job %s completed", shortID(ev.JobID))
	if job := ev.Job; job != nil && job.Result != nil {
		ok, total := job.Result.PublishCounts()
		if total > 0 {
			fmt.Fprintf(&b, ": %d/%d listings", ok, total)
		}
		for _, p := range job.Result.Platforms {
			if p.Success && p.URL != "" {
				fmt.Fprintf(&b, "\n%s %s: %s", p.Platform, p.ProductType, p.URL)
			}
		}
		if len(job.Warnings) > 0 {
			fmt.Fprintf(&b, "\n%d warning(s)", len(job.Warnings))
		}
	}
	return payload{
		title:   "podforge - Job Complete",
		message: b.String(),
		tags:    []string{"podforge", "job", "completed"},
	}
}

func jobError(job *queue.Job) string {
	if job == nil || strings.TrimSpace(job.Error) == "" {
		return "unknown error"
	}
	return strings.TrimSpace(job.Error)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *ntfyNotifier) Test(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "podforge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"podforge", "test"},
		priority: "low",
	})
}

func (n *ntfyNotifier) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) HandleEvent(context.Context, events.Event) error { return nil }
func (noopNotifier) Test(context.Context) error                        { return nil }
