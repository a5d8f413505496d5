package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"predictrix/server/internal/push"
	"predictrix/server/internal/wire"
)

// Chats lists the caller's chats and follows up with a "tpcs" frame
// carrying each chat's push topic, mirroring ChatsController.
func (d *Deps) Chats(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "chts") {
		return true
	}

	chatIDs, err := d.Store.GetUserChatIDs(ctx, sess.UserID)
	if err != nil {
		slog.Error("handlers: get user chat ids failed", "user_id", sess.UserID, "error", err)
		return replyJSON(sess, "chts", []string{})
	}
	if len(chatIDs) == 0 {
		return replyJSON(sess, "chts", []string{})
	}

	summaries, err := d.Store.GetChatSummaries(ctx, chatIDs)
	if err != nil {
		slog.Error("handlers: get chat summaries failed", "user_id", sess.UserID, "error", err)
		return replyJSON(sess, "chts", []string{})
	}

	if !replyJSON(sess, "chts", summaries) {
		return false
	}

	topics := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		if topic := push.ChatTopic(id, d.JoinSecret); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		return true
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return true
	}
	return reply(sess, "tpcs", data)
}
