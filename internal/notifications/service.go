package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mirrorcast/internal/config"
)

const userAgent = "Mirrorcast-Go/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyMirrorLive(ctx context.Context, streamer, title, broadcastID string) error
	NotifyMirrorEnded(ctx context.Context, streamer string, duration time.Duration, restarts int) error
	NotifyMirrorFailed(ctx context.Context, streamer, cause string, err error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		live:     cfg.Notifications.SessionLive,
		ended:    cfg.Notifications.SessionEnded,
		errors:   cfg.Notifications.Errors,
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
	live     bool
	ended    bool
	errors   bool
}

func (n *ntfyService) NotifyMirrorLive(ctx context.Context, streamer, title, broadcastID string) error {
	if !n.live {
		return nil
	}
	streamer = strings.TrimSpace(streamer)
	message := fmt.Sprintf("🔴 Mirroring %s: %s", streamer, strings.TrimSpace(title))
	if broadcastID = strings.TrimSpace(broadcastID); broadcastID != "" {
		message = fmt.Sprintf("%s\nhttps://youtu.be/%s", message, broadcastID)
	}
	data := payload{
		title:    "Mirrorcast - Live",
		message:  message,
		tags:     []string{"mirrorcast", "live"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMirrorEnded(ctx context.Context, streamer string, duration time.Duration, restarts int) error {
	if !n.ended {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	message := fmt.Sprintf("✅ Mirror of %s ended after %s", strings.TrimSpace(streamer), duration)
	if restarts > 0 {
		message = fmt.Sprintf("%s (%d relay restarts)", message, restarts)
	}
	data := payload{
		title:   "Mirrorcast - Ended",
		message: message,
		tags:    []string{"mirrorcast", "session", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMirrorFailed(ctx context.Context, streamer, cause string, err error) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Mirror of ")
	builder.WriteString(strings.TrimSpace(streamer))
	builder.WriteString(" failed")
	if cause = strings.TrimSpace(cause); cause != "" {
		builder.WriteString(" (")
		builder.WriteString(cause)
		builder.WriteString(")")
	}
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "Mirrorcast - Failed",
		message:  builder.String(),
		tags:     []string{"mirrorcast", "session", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Mirrorcast - Error",
		message:  builder.String(),
		tags:     []string{"mirrorcast", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Mirrorcast - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mirrorcast", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyMirrorLive(context.Context, string, string, string) error      { return nil }
func (noopService) NotifyMirrorEnded(context.Context, string, time.Duration, int) error { return nil }
func (noopService) NotifyMirrorFailed(context.Context, string, string, error) error     { return nil }
func (noopService) NotifyError(context.Context, error, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
