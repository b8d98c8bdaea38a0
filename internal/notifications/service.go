package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitesync/internal/config"
)

const userAgent = "sitesync/0.1"

// Service defines the alerts raised by the sync engine.
type Service interface {
	NotifySyncFailed(ctx context.Context, remaining int, lastErr string) error
	NotifySyncRecovered(ctx context.Context) error
	NotifyDeadLettered(ctx context.Context, id, destination, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop when no topic is set.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg,
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
	cfg      config.Notifications
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, remaining int, lastErr string) error {
	if !n.cfg.SyncFailed {
		return nil
	}
	message := fmt.Sprintf("⚠️ Sync incomplete: %d item(s) still queued", remaining)
	if lastErr = strings.TrimSpace(lastErr); lastErr != "" {
		message += "\nLast error: " + lastErr
	}
	return n.send(ctx, payload{
		title:   "sitesync - Sync Failed",
		message: message,
		tags:    []string{"sitesync", "sync", "failed"},
	})
}

func (n *ntfyService) NotifySyncRecovered(ctx context.Context) error {
	if !n.cfg.SyncRecovered {
		return nil
	}
	return n.send(ctx, payload{
		title:   "sitesync - Synced",
		message: "✅ All queued uploads delivered",
		tags:    []string{"sitesync", "sync", "recovered"},
	})
}

func (n *ntfyService) NotifyDeadLettered(ctx context.Context, id, destination, reason string) error {
	if !n.cfg.DeadLetter {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Upload rejected: ")
	builder.WriteString(strings.TrimSpace(destination))
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString("\nReason: ")
		builder.WriteString(reason)
	}
	builder.WriteString("\nRequeue with: sitesync queue requeue ")
	builder.WriteString(id)
	return n.send(ctx, payload{
		title:    "sitesync - Upload Rejected",
		message:  builder.String(),
		tags:     []string{"sitesync", "dead-letter", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "sitesync - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"sitesync", "test"},
		priority: "low",
	})
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

func (noopService) NotifySyncFailed(context.Context, int, string) error { return nil }
func (noopService) NotifySyncRecovered(context.Context) error { return nil }
func (noopService) NotifyDeadLettered(context.Context, string, string, string) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
