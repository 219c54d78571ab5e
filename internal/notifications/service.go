package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"handout/internal/config"
)

const userAgent = "handout/0.1.0"

// Event names a notification-worthy job milestone.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: "title", "job_id", "error",
// "stage", "outputs" (int).
type Payload map[string]any

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

// Publish implements Service. Events disabled in configuration are dropped.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	var data message
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return nil
		}
		title := payloadString(payload, "title", "Lecture Handout")
		body := fmt.Sprintf("✅ Handout ready: %s", title)
		if count, ok := payload["outputs"].(int); ok && count > 1 {
			body = fmt.Sprintf("%s (%d files)", body, count)
		}
		data = message{
			title: "Handout - Complete",
			body:  body,
			tags:  []string{"handout", "job", "completed"},
		}
	case EventJobFailed:
		if !n.failed {
			return nil
		}
		var b strings.Builder
		b.WriteString("❌ Job ")
		b.WriteString(payloadString(payload, "job_id", "unknown"))
		if stage := payloadString(payload, "stage", ""); stage != "" {
			b.WriteString(" failed at ")
			b.WriteString(stage)
		} else {
			b.WriteString(" failed")
		}
		b.WriteString(": ")
		b.WriteString(payloadString(payload, "error", "unknown error"))
		data = message{
			title:    "Handout - Failed",
			body:     b.String(),
			tags:     []string{"handout", "error", "alert"},
			priority: "high",
		}
	case EventTest:
		data = message{
			title:    "Handout - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"handout", "test"},
			priority: "low",
		}
	default:
		return nil
	}
	return n.send(ctx, data)
}

func payloadString(payload Payload, key, fallback string) string {
	switch v := payload[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case error:
		if v != nil {
			return strings.TrimSpace(v.Error())
		}
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
