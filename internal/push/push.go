// Package push sends best-effort mobile push notifications when a
// chat receives a new message or assertion. It replaces the original
// server's direct firebase_admin.messaging calls (message_sender.py)
// with an HTTP call to an external push-notification service, the
// same "talk to a sidecar over HTTP" shape the teacher uses for its
// RAG service client.
package push

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"predictrix/server/internal/config"
	"predictrix/server/internal/domain"
)

// Notifier sends a push notification to every client subscribed to a
// chat's topic. Failure is never fatal to the operation that
// triggered it (spec treats push delivery as best-effort).
type Notifier interface {
	Notify(ctx context.Context, topic, title, body, icon string) error
}

// HTTPNotifier posts to an external push service.
type HTTPNotifier struct {
	client *resty.Client
}

// NewHTTPNotifier builds a Notifier against cfg.Push.URL. When the URL
// is empty, Notify becomes a no-op - local/dev setups can run the
// whole chat core without a push backend configured.
func NewHTTPNotifier(cfg config.PushConfig) *HTTPNotifier {
	client := resty.New()
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client.SetTimeout(timeout)
	client.SetBaseURL(cfg.URL)
	client.SetHeader("Content-Type", "application/json")

	return &HTTPNotifier{client: client}
}

type notifyRequest struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Notify sends one push notification. Errors are logged, not
// returned as fatal - a dropped push notification never closes a
// session or fails the handler that triggered it.
func (n *HTTPNotifier) Notify(ctx context.Context, topic, title, body, icon string) error {
	if n.client.BaseURL == "" {
		return nil
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(notifyRequest{Topic: topic, Title: title, Body: body, Icon: icon, Color: "#0088FF"}).
		Post("/notify")
	if err != nil {
		slog.Warn("push notification request failed", "topic", topic, "error", err)
		return fmt.Errorf("push: notify failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusAccepted {
		slog.Warn("push notification rejected", "topic", topic, "status", resp.StatusCode())
		return fmt.Errorf("push: notify rejected: status %d", resp.StatusCode())
	}
	return nil
}

// ChatTopic derives a chat's push topic name from its ID and the
// shared join secret, mirroring generate_chat_topic: a SHA-256 of
// "{chatId}{secret}", hex-encoded and truncated to 64 chars, prefixed
// with "chat_". Returns "" when no secret is configured, same as the
// original (no topic, no push for that chat).
func ChatTopic(chatID int64, secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", chatID, secret)))
	return "chat_" + hex.EncodeToString(sum[:])[:64]
}

// ChatJoinTokenHash derives the short join-token hash a client
// presents to the cjtk/join handlers, mirroring
// generate_chat_join_token_hash: SHA-256 of "{chatId}{secret}",
// base64-encoded and truncated to 16 characters.
func ChatJoinTokenHash(chatID string, secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(chatID + secret))
	return base64.StdEncoding.EncodeToString(sum[:])[:16]
}

// NotifyNewMessage is the convenience path handlers call after
// appending a text message or assertion to a chat: resolve the
// chat's topic and push the sender's display name/content.
func NotifyNewMessage(ctx context.Context, n Notifier, chatID int64, secret string, sender domain.Profile, text string) {
	topic := ChatTopic(chatID, secret)
	if topic == "" {
		return
	}
	title := sender.DisplayName
	if title == "" {
		title = "New Message"
	}
	if err := n.Notify(ctx, topic, title, text, sender.PhotoURL); err != nil {
		slog.Warn("best-effort push notification failed", "chat_id", chatID, "error", err)
	}
}
