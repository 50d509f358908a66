package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/config"
)

const userAgent = "storyreel/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventVideoQueued      Event = "video_queued"
	EventStoryGenerated   Event = "story_generated"
	EventGenerationFailed Event = "generation_failed"
	EventRenderCompleted  Event = "render_completed"
	EventRenderFailed     Event = "render_failed"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes workflow events.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventVideoQueued:      cfg.Notifications.Queued,
			EventStoryGenerated:   cfg.Notifications.Queued,
			EventRenderCompleted:  cfg.Notifications.Completed,
			EventRenderFailed:     cfg.Notifications.Errors,
			EventGenerationFailed: cfg.Notifications.Errors,
			EventTest:             true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

var titleCase = cases.Title(language.English)

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := format(event, p)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, p Payload) (payload, bool) {
	switch event {
	case EventVideoQueued:
		return payload{
			title:   "storyreel - Render Queued",
			message: fmt.Sprintf("🎬 Render queued: %s", p.str("videoID")),
			tags:    []string{"storyreel", "render", "queued"},
		}, true
	case EventStoryGenerated:
		message := fmt.Sprintf("📝 Story ready: %s", p.str("title"))
		if clips := p.str("clipCount"); clips != "" {
			message = fmt.Sprintf("%s (%s clips)", message, clips)
		}
		return payload{
			title:   "storyreel - Story Generated",
			message: message,
			tags:    []string{"storyreel", "script", "generated"},
		}, true
	case EventRenderCompleted:
		message := fmt.Sprintf("✅ Video ready: %s", p.str("videoID"))
		if key := p.str("videoKey"); key != "" {
			message = fmt.Sprintf("%s\nKey: %s", message, key)
		}
		return payload{
			title:    "storyreel - Render Complete",
			message:  message,
			tags:     []string{"storyreel", "render", "completed"},
			priority: "high",
		}, true
	case EventRenderFailed, EventGenerationFailed:
		var builder strings.Builder
		builder.WriteString("❌ ")
		if event == EventRenderFailed {
			builder.WriteString("Render failed")
		} else {
			builder.WriteString("Generation failed")
		}
		if stage := strings.TrimSpace(p.str("stage")); stage != "" {
			builder.WriteString(" during ")
			builder.WriteString(titleCase.String(stage))
		}
		if id := p.str("videoID"); id != "" {
			builder.WriteString(" for ")
			builder.WriteString(id)
		}
		builder.WriteString(": ")
		if msg := strings.TrimSpace(p.str("error")); msg != "" {
			builder.WriteString(msg)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "storyreel - Error",
			message:  builder.String(),
			tags:     []string{"storyreel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "storyreel - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"storyreel", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
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
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
