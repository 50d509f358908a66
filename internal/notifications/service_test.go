package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRenderCompleted, notifications.Payload{"videoID": "v"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "queued",
			event:         notifications.EventVideoQueued,
			payload:       notifications.Payload{"videoID": "vid-1"},
			expectTitle:   "storyreel - Render Queued",
			expectMessage: "🎬 Render queued: vid-1",
			expectTags:    "storyreel,render,queued",
		},
		{
			name:          "story generated",
			event:         notifications.EventStoryGenerated,
			payload:       notifications.Payload{"title": "The Last Train", "clipCount": 12},
			expectTitle:   "storyreel - Story Generated",
			expectMessage: "📝 Story ready: The Last Train (12 clips)",
			expectTags:    "storyreel,script,generated",
		},
		{
			name:           "render completed",
			event:          notifications.EventRenderCompleted,
			payload:        notifications.Payload{"videoID": "vid-1", "videoKey": "videos/vid-1.mp4"},
			expectTitle:    "storyreel - Render Complete",
			expectMessage:  "✅ Video ready: vid-1\nKey: videos/vid-1.mp4",
			expectTags:     "storyreel,render,completed",
			expectPriority: "high",
		},
		{
			name:           "render failed",
			event:          notifications.EventRenderFailed,
			payload:        notifications.Payload{"videoID": "vid-1", "stage": "rendering", "error": errors.New("ffmpeg exited 1")},
			expectTitle:    "storyreel - Error",
			expectMessage:  "❌ Render failed during Rendering for vid-1: ffmpeg exited 1",
			expectTags:     "storyreel,error,alert",
			expectPriority: "high",
		},
		{
			name:           "generation failed",
			event:          notifications.EventGenerationFailed,
			payload:        notifications.Payload{},
			expectTitle:    "storyreel - Error",
			expectMessage:  "❌ Generation failed: unknown",
			expectTags:     "storyreel,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Queued = false
	cfg.Notifications.Completed = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventVideoQueued,
		notifications.EventStoryGenerated,
		notifications.EventRenderCompleted,
		notifications.EventRenderFailed,
		notifications.EventGenerationFailed,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
