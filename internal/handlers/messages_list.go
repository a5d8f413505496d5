package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/wire"
)

const maxMessagesReturned = 500

// Messages returns the last 500 entries of a chat's message log, with
// sender userIds resolved to profiles and AssertionReferences
// resolved to full assertion payloads, mirroring MessagesController.
func (d *Deps) Messages(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "msgs") {
		return true
	}
	chatID, err := parseChatID(strings.TrimSpace(payload))
	if err != nil {
		return replyString(sess, "msgs", string(errors.CodeInvalidChatID))
	}

	prefix := fmt.Sprintf("msgs%d,", chatID)

	var result []byte
	d.Locks.WithLock(chatID, func() {
		_, isMemberOfChat, mErr := isMember(ctx, d, chatID, sess.UserID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			result = []byte(string(errors.CodeFail))
			return
		}
		if !isMemberOfChat {
			result = []byte(string(errors.CodeNotMember))
			return
		}

		msgs, err := d.Store.GetChatMessages(ctx, chatID)
		if err != nil {
			slog.Error("handlers: get chat messages failed", "chat_id", chatID, "error", err)
			result = []byte(string(errors.CodeFail))
			return
		}
		if len(msgs) > maxMessagesReturned {
			msgs = msgs[len(msgs)-maxMessagesReturned:]
		}

		out := make([]interface{}, 0, len(msgs))
		for _, m := range msgs {
			if m.Type == "assertion" {
				a, aErr := d.Store.GetAssertion(ctx, m.AssertionID)
				if aErr != nil || a == nil {
					continue
				}
				now := time.Now().UTC()
				refreshed, cErr := checkAndCompleteAssertion(ctx, d, chatID, a, now)
				if cErr == nil {
					a = refreshed
				}
				out = append(out, assertionWire(ctx, d, a, sess.UserID))
				continue
			}
			out = append(out, map[string]interface{}{
				"type":      "text",
				"sender":    d.profile(ctx, m.Sender),
				"timestamp": m.Timestamp.UTC().Format(time.RFC3339Nano),
				"content":   m.Content,
			})
		}

		data, jErr := json.Marshal(out)
		if jErr != nil {
			result = []byte(string(errors.CodeFail))
			return
		}
		result = data
	})

	return reply(sess, prefix, result)
}
