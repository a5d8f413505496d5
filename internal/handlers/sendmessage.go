package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"predictrix/server/internal/domain"
	"predictrix/server/internal/errors"
	"predictrix/server/internal/events"
	"predictrix/server/internal/push"
	"predictrix/server/internal/wire"
)

// SendMessage appends a text message to a chat, broadcasts it to every
// other member via a "newm" event, and sends a push notification,
// mirroring SendMessageController. The sender never receives their own
// "newm" echo - they already have the message from the "sndm" reply.
func (d *Deps) SendMessage(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "sndm") {
		return true
	}

	parts := strings.SplitN(strings.TrimSpace(payload), " ", 2)
	chatIDStr := parts[0]
	if chatIDStr == "" {
		return replyFail(sess, "sndm", string(errors.CodeInvalidChatID))
	}
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return replyFail(sess, "sndm", string(errors.CodeInvalidChatID))
	}
	text := ""
	if len(parts) > 1 {
		text = parts[1]
	}

	var outcome string
	var fatal bool
	d.Locks.WithLock(chatID, func() {
		members, ok, mErr := isMember(ctx, d, chatID, sess.UserID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			outcome, fatal = string(errors.CodeFail), true
			return
		}
		if !ok {
			outcome, fatal = string(errors.CodeNotMember), true
			return
		}

		entry := domain.MessageEntry{
			Type:      "text",
			Sender:    sess.UserID,
			Timestamp: time.Now().UTC(),
			Content:   text,
		}
		senderProfile := d.profile(ctx, sess.UserID)
		if err := d.Store.AppendMessage(ctx, chatID, entry, senderProfile.DisplayName); err != nil {
			slog.Error("handlers: append message failed", "chat_id", chatID, "error", err)
			outcome, fatal = string(errors.CodeFail), true
			return
		}

		eventBody := map[string]interface{}{
			"sender":    senderProfile,
			"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
			"content":   entry.Content,
		}
		data, jErr := json.Marshal(eventBody)
		if jErr == nil {
			recipients := make([]string, 0, len(members))
			for _, uid := range members {
				if uid != sess.UserID {
					recipients = append(recipients, uid)
				}
			}
			d.Events.Emit(events.Event{
				Prefix:     fmt.Sprintf("newm%d,", chatID),
				Data:       data,
				Recipients: recipients,
			})
		}

		if d.Notifier != nil {
			push.NotifyNewMessage(ctx, d.Notifier, chatID, d.JoinSecret, senderProfile, text)
		}

		outcome = "ok"
	})

	if !replyString(sess, "sndm", outcome) {
		return false
	}
	return !fatal
}
