package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/push"
	"predictrix/server/internal/wire"
)

// JoinTokenGenerate mints a "{hash}.{base64(chatId)}" invite token for
// a chat the caller already belongs to, mirroring
// ChatJoinTokenGeneratorController.
func (d *Deps) JoinTokenGenerate(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "cjtk") {
		return true
	}
	chatIDStr := strings.TrimSpace(payload)
	if chatIDStr == "" {
		return replyFail(sess, "cjtk", string(errors.CodeInvalidChatID))
	}
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return replyFail(sess, "cjtk", string(errors.CodeInvalidChatID))
	}

	var outcome string
	var fatal bool
	d.Locks.WithLock(chatID, func() {
		_, ok, mErr := isMember(ctx, d, chatID, sess.UserID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			outcome, fatal = string(errors.CodeFail), true
			return
		}
		if !ok {
			outcome, fatal = string(errors.CodeNotMember), true
			return
		}

		hash := push.ChatJoinTokenHash(chatIDStr, d.JoinSecret)
		if hash == "" {
			outcome, fatal = string(errors.CodeSecretFail), true
			return
		}
		outcome = hash + "." + base64.StdEncoding.EncodeToString([]byte(chatIDStr))
	})

	if !replyString(sess, "cjtk", outcome) {
		return false
	}
	return !fatal
}

// JoinTokenConsume validates an invite token and adds the caller to
// the named chat, refreshing their chat list on success, mirroring
// ChatJoinTokenController.
func (d *Deps) JoinTokenConsume(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "join") {
		return true
	}
	token := strings.TrimSpace(payload)
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return replyFail(sess, "join", string(errors.CodeInvalidToken))
	}
	providedHash, chatIDEnc := parts[0], parts[1]
	chatIDBytes, err := base64.StdEncoding.DecodeString(chatIDEnc)
	if err != nil {
		return replyFail(sess, "join", string(errors.CodeInvalidToken))
	}
	chatIDStr := string(chatIDBytes)
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return replyFail(sess, "join", string(errors.CodeInvalidToken))
	}

	expectedHash := push.ChatJoinTokenHash(chatIDStr, d.JoinSecret)
	if expectedHash == "" {
		return replyFail(sess, "join", string(errors.CodeSecretFail))
	}
	if providedHash != expectedHash {
		return replyFail(sess, "join", string(errors.CodeInvalidToken))
	}

	var outcome string
	var fatal bool
	d.Locks.WithLock(chatID, func() {
		_, ok, mErr := isMember(ctx, d, chatID, sess.UserID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			outcome, fatal = string(errors.CodeFail), true
			return
		}
		if ok {
			outcome, fatal = string(errors.CodeAlreadyMember), true
			return
		}
		if jErr := d.Store.JoinChat(ctx, chatID, sess.UserID); jErr != nil {
			slog.Error("handlers: join chat failed", "chat_id", chatID, "user_id", sess.UserID, "error", jErr)
			outcome, fatal = string(errors.CodeAddFailed), true
			return
		}
		outcome = "joined"
	})

	if fatal {
		return replyFail(sess, "join", outcome)
	}
	if !replyString(sess, "join", outcome) {
		return false
	}
	return d.Chats(ctx, sess, "")
}
