package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/events"
	"predictrix/server/internal/wire"
)

// Vote records the caller's yes/no validation vote on an assertion
// whose validation date has passed, and broadcasts the refreshed
// assertion (now possibly completed) to every member, mirroring
// VoteController. Every error path here keeps the session open per
// the recoverable-error taxonomy, matching the original's own
// return-True behavior on this handler.
func (d *Deps) Vote(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "vote") {
		return true
	}

	parts := strings.SplitN(strings.TrimSpace(payload), ",", 2)
	if len(parts) != 2 {
		return replyString(sess, "vote", string(errors.CodeInvalidFormat))
	}
	assertionIDStr, voteStr := parts[0], strings.ToLower(parts[1])
	if assertionIDStr == "" || (voteStr != "true" && voteStr != "false") {
		return replyString(sess, "vote", string(errors.CodeInvalidFormat))
	}
	vote := voteStr == "true"

	assertionID, err := parseAssertionID(assertionIDStr)
	if err != nil {
		return replyString(sess, "vote", string(errors.CodeAssertionNotFound))
	}

	a, err := d.Store.GetAssertion(ctx, assertionID)
	if err != nil || a == nil {
		return replyString(sess, "vote", string(errors.CodeAssertionNotFound))
	}
	if a.Completed {
		return replyString(sess, "vote", string(errors.CodeAssertionComplete))
	}
	if a.ValidationDate.IsZero() {
		return replyString(sess, "vote", string(errors.CodeVotingNotOpen))
	}
	now := time.Now().UTC()
	if !now.After(a.ValidationDate) {
		return replyString(sess, "vote", string(errors.CodeVotingNotOpen))
	}
	chatID := a.ChatID
	if chatID == 0 {
		return replyString(sess, "vote", string(errors.CodeInvalidChatID))
	}

	var outcome string
	d.Locks.WithLock(chatID, func() {
		members, ok, mErr := isMember(ctx, d, chatID, sess.UserID)
		if mErr != nil {
			slog.Error("handlers: get chat members failed", "chat_id", chatID, "error", mErr)
			outcome = string(errors.CodeFail)
			return
		}
		if !ok {
			outcome = string(errors.CodeNotMember)
			return
		}

		if vErr := d.Store.AddVote(ctx, assertionID, sess.UserID, vote); vErr != nil {
			slog.Error("handlers: add vote failed", "assertion_id", assertionID, "error", vErr)
			outcome = string(errors.CodeVoteFailed)
			return
		}

		updated, gErr := d.Store.GetAssertion(ctx, assertionID)
		if gErr == nil && updated != nil {
			a = updated
		}
		refreshed, cErr := checkAndCompleteAssertion(ctx, d, chatID, a, now)
		if cErr == nil {
			a = refreshed
		}

		content := assertionContent(ctx, d, a)
		data, jErr := json.Marshal(content)
		if jErr == nil {
			d.Events.Emit(events.Event{Prefix: "assr", Data: data, Recipients: members})
		}

		outcome = "voted"
	})

	return replyString(sess, "vote", outcome)
}
