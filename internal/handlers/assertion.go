package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/events"
	"predictrix/server/internal/push"
	"predictrix/server/internal/wire"
)

const assertionDateLayout = "2006-01-02T15:04:05.000"

// CreateAssertion creates a yes/no question within a chat, appends an
// assertion-reference message, and broadcasts it to every member
// (including the author, unlike a plain text message), mirroring
// AssertionSendController.
func (d *Deps) CreateAssertion(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "assr") {
		return true
	}

	parts := strings.SplitN(strings.TrimSpace(payload), ",", 4)
	if len(parts) != 4 {
		return replyFail(sess, "assr", string(errors.CodeInvalidFormat))
	}
	chatIDStr, validationDateStr, castingDeadlineStr, text := parts[0], parts[1], parts[2], parts[3]
	if chatIDStr == "" || validationDateStr == "" || castingDeadlineStr == "" || text == "" {
		return replyFail(sess, "assr", string(errors.CodeMissingFields))
	}
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return replyFail(sess, "assr", string(errors.CodeInvalidFormat))
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

		castingDt, cErr := parseWireTimestamp(castingDeadlineStr)
		validationDt, vErr := parseWireTimestamp(validationDateStr)
		if cErr != nil || vErr != nil {
			outcome, fatal = string(errors.CodeInvalidDateFormat), true
			return
		}

		now := time.Now().UTC()
		if !castingDt.After(now) {
			outcome, fatal = string(errors.CodeCastingDeadlinePast), true
			return
		}
		if !validationDt.After(castingDt) {
			outcome, fatal = string(errors.CodeValidationBeforeCasting), true
			return
		}

		id, caErr := d.Store.CreateAssertion(ctx, sess.UserID, chatID, text, validationDt, castingDt)
		if caErr != nil {
			slog.Error("handlers: create assertion failed", "chat_id", chatID, "error", caErr)
			outcome, fatal = string(errors.CodeCreateFailed), true
			return
		}

		entry := assertionMessageEntry(id)
		if aErr := d.Store.AppendMessage(ctx, chatID, entry, ""); aErr != nil {
			slog.Error("handlers: append assertion message failed", "chat_id", chatID, "error", aErr)
			outcome, fatal = string(errors.CodeMessageFailed), true
			return
		}

		a, gErr := d.Store.GetAssertion(ctx, id)
		if gErr == nil && a != nil {
			data, jErr := marshalAssertionWire(ctx, d, a, sess.UserID)
			if jErr == nil {
				d.Events.Emit(events.Event{
					Prefix:     fmt.Sprintf("newm%d,", chatID),
					Data:       data,
					Recipients: append([]string{}, members...),
				})
			}
		}

		if d.Notifier != nil {
			push.NotifyNewMessage(ctx, d.Notifier, chatID, d.JoinSecret, d.profile(ctx, sess.UserID), text)
		}

		outcome = fmt.Sprintf("created:%d", id)
	})

	if !replyString(sess, "assr", outcome) {
		return false
	}
	return !fatal
}

func parseWireTimestamp(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	t, err := time.Parse(assertionDateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s+"Z")
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
