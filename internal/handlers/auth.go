package handlers

import (
	"context"
	"log/slog"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/wire"
)

// Ping replies "pong" unconditionally (spec scenario S1). No auth
// required.
func (d *Deps) Ping(ctx context.Context, sess *wire.Session, payload string) bool {
	return replyString(sess, "ping", "pong")
}

// User authenticates the bearer token in payload against the
// identity verifier, upserts the user row, binds the session to the
// resulting userId, and immediately pushes the caller's chat list -
// mirroring UserController's call into ChatsController on success.
// Token rejection is fatal: an unauthenticated connection with no
// valid identity has nothing else useful to do.
func (d *Deps) User(ctx context.Context, sess *wire.Session, payload string) bool {
	claims, err := d.Verifier.Verify(ctx, payload)
	if err != nil {
		slog.Warn("handlers: token verification failed", "conn_id", sess.ConnID, "error", err)
		replyString(sess, "", string(errors.CodeTokenFail))
		return false
	}

	user, err := d.Store.EnsureUser(ctx, claims.UserID, claims.DisplayName, claims.Email, claims.PhotoURL)
	if err != nil {
		slog.Error("handlers: ensure user failed", "user_id", claims.UserID, "error", err)
		replyString(sess, "", string(errors.CodeTokenFail))
		return false
	}

	d.invalidateProfile(ctx, user.UserID)
	sess.UserID = user.UserID
	d.Events.Register(user.UserID, sess)

	if !replyString(sess, "token_ok", user.DisplayName) {
		return false
	}
	return d.Chats(ctx, sess, "")
}
