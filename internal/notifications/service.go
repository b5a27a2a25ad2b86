package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spacedub/internal/config"
)

const userAgent = "spacedub/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventJobCompleted     Event = "job_completed"
	EventReplyUndelivered Event = "reply_undelivered"
	EventJobFailed        Event = "job_failed"
	EventDaemonStarted    Event = "daemon_started"
	EventDaemonStopped    Event = "daemon_stopped"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields. Known keys: id, origin, mode, language,
// link, phase, reason, duration, error, context.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.JobCompletions,
		failures:    cfg.Notifications.JobFailures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	failures    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unsupported notification event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventJobCompleted, EventReplyUndelivered:
		return n.completions
	case EventJobFailed:
		return n.failures
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, bool) {
	id := payload.str("id")
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ %s ready for mention %s", describeMode(payload), id)
		if link := payload.str("link"); link != "" {
			body += "\n" + link
		}
		if d := payload.duration("duration"); d > 0 {
			body += fmt.Sprintf("\nTook %s", d)
		}
		return message{
			title: "spacedub - Job Complete",
			body:  body,
			tags:  []string{"spacedub", "job", "completed"},
		}, true
	case EventReplyUndelivered:
		body := fmt.Sprintf("📭 %s finished for mention %s but the reply was not posted", describeMode(payload), id)
		if link := payload.str("link"); link != "" {
			body += "\n" + link
		}
		if reason := payload.str("reason"); reason != "" {
			body += "\nReason: " + reason
		}
		return message{
			title:    "spacedub - Reply Not Delivered",
			body:     body,
			tags:     []string{"spacedub", "reply", "warning"},
			priority: "high",
		}, true
	case EventJobFailed:
		body := fmt.Sprintf("❌ Mention %s failed during %s", id, fallback(payload.str("phase"), "unknown phase"))
		if reason := payload.str("reason"); reason != "" {
			body += ": " + reason
		}
		if origin := payload.str("origin"); origin != "" {
			body += "\n" + origin
		}
		return message{
			title:    "spacedub - Job Failed",
			body:     body,
			tags:     []string{"spacedub", "job", "failed"},
			priority: "high",
		}, true
	case EventDaemonStarted:
		return message{
			title: "spacedub - Daemon Started",
			body:  fmt.Sprintf("Watching mentions for @%s", fallback(payload.str("handle"), "unknown")),
			tags:  []string{"spacedub", "daemon", "started"},
		}, true
	case EventDaemonStopped:
		body := "Daemon stopped"
		if reason := payload.str("reason"); reason != "" {
			body += ": " + reason
		}
		return message{
			title: "spacedub - Daemon Stopped",
			body:  body,
			tags:  []string{"spacedub", "daemon", "stopped"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.str("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(fallback(payload.str("error"), "unknown"))
		return message{
			title:    "spacedub - Error",
			body:     builder.String(),
			tags:     []string{"spacedub", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "spacedub - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"spacedub", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func describeMode(payload Payload) string {
	if payload.str("mode") == "summary" {
		return "Summary"
	}
	if lang := payload.str("language"); lang != "" {
		return lang + " dub"
	}
	return "Dub"
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) duration(key string) time.Duration {
	if p == nil {
		return 0
	}
	if d, ok := p[key].(time.Duration); ok && d > 0 {
		return d.Round(time.Second)
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
