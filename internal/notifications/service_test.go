package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mirrorcast/internal/config"
	"mirrorcast/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyMirrorLive(context.Background(), "someone", "title", "b1"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCapture(t *testing.T, status int) (*config.Config, func() []captured) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "nope")
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	return &cfg, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "live",
			send: func(s notifications.Service) error {
				return s.NotifyMirrorLive(context.Background(), "Someone", "Speedrun", "b1")
			},
			expectTitle:    "Mirrorcast - Live",
			expectMessage:  "🔴 Mirroring Someone: Speedrun\nhttps://youtu.be/b1",
			expectTags:     "mirrorcast,live",
			expectPriority: "high",
		},
		{
			name: "ended",
			send: func(s notifications.Service) error {
				return s.NotifyMirrorEnded(context.Background(), "Someone", 90*time.Minute+400*time.Millisecond, 2)
			},
			expectTitle:   "Mirrorcast - Ended",
			expectMessage: "✅ Mirror of Someone ended after 1h30m0s (2 relay restarts)",
			expectTags:    "mirrorcast,session,completed",
		},
		{
			name: "failed",
			send: func(s notifications.Service) error {
				return s.NotifyMirrorFailed(context.Background(), "Someone", "resolution_failed", errors.New("no feed"))
			},
			expectTitle:    "Mirrorcast - Failed",
			expectMessage:  "❌ Mirror of Someone failed (resolution_failed): no feed",
			expectTags:     "mirrorcast,session,failed",
			expectPriority: "high",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("lock held"), "daemon")
			},
			expectTitle:    "Mirrorcast - Error",
			expectMessage:  "❌ Error with daemon: lock held",
			expectTags:     "mirrorcast,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "Mirrorcast - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "mirrorcast,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, requests := newCapture(t, http.StatusOK)
			if err := tc.send(notifications.NewService(cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := requests()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			c := got[0]
			if c.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, c.title)
			}
			if c.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, c.body)
			}
			if c.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, c.tags)
			}
			if c.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, c.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	cfg, requests := newCapture(t, http.StatusOK)
	cfg.Notifications.SessionLive = false
	cfg.Notifications.SessionEnded = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	ctx := context.Background()
	_ = svc.NotifyMirrorLive(ctx, "a", "b", "c")
	_ = svc.NotifyMirrorEnded(ctx, "a", time.Minute, 0)
	_ = svc.NotifyMirrorFailed(ctx, "a", "cause", nil)
	_ = svc.NotifyError(ctx, errors.New("x"), "")
	if got := requests(); len(got) != 0 {
		t.Fatalf("expected suppressed notifications, got %d", len(got))
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if got := requests(); len(got) != 1 {
		t.Fatalf("test notification should ignore toggles, got %d", len(got))
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	cfg, _ := newCapture(t, http.StatusForbidden)
	err := notifications.NewService(cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
