package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/wire"
)

// CreateChat creates a new chat with the caller as its sole member
// and refreshes the caller's chat list, mirroring ChatCreateController.
func (d *Deps) CreateChat(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "crtc") {
		return true
	}
	name := strings.TrimSpace(payload)
	if name == "" {
		return replyFail(sess, "crtc", string(errors.CodeInvalidName))
	}

	chatID, err := d.Store.CreateChat(ctx, name, sess.UserID)
	if err != nil {
		slog.Error("handlers: create chat failed", "user_id", sess.UserID, "error", err)
		return replyFail(sess, "crtc", string(errors.CodeCreateFailed))
	}

	if !replyString(sess, "crtc", fmt.Sprintf("created:%d", chatID)) {
		return false
	}
	return d.Chats(ctx, sess, "")
}
