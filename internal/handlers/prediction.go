package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"predictrix/server/internal/errors"
	"predictrix/server/internal/events"
	"predictrix/server/internal/wire"
)

// Predict records the caller's confidence-weighted yes/no forecast on
// an assertion, broadcasts the updated assertion to the other members,
// and separately confirms to the caller with didPredict=true,
// mirroring PredictionController.
func (d *Deps) Predict(ctx context.Context, sess *wire.Session, payload string) bool {
	if !requireAuth(sess, "pred") {
		return true
	}

	parts := strings.SplitN(strings.TrimSpace(payload), ",", 2)
	if len(parts) != 2 {
		return replyFail(sess, "pred", string(errors.CodeInvalidFormat))
	}
	assertionIDStr := parts[0]
	rest := strings.SplitN(parts[1], ",", 2)
	if len(rest) != 2 {
		return replyFail(sess, "pred", string(errors.CodeInvalidFormat))
	}
	confidenceStr, forecastStr := rest[0], rest[1]

	if assertionIDStr == "" {
		return replyFail(sess, "pred", string(errors.CodeMissingFields))
	}
	assertionID, err := parseAssertionID(assertionIDStr)
	if err != nil {
		return replyFail(sess, "pred", string(errors.CodeMissingFields))
	}

	a, err := d.Store.GetAssertion(ctx, assertionID)
	if err != nil || a == nil {
		return replyFail(sess, "pred", string(errors.CodeInvalidChatID))
	}
	chatID := a.ChatID
	if chatID == 0 {
		return replyFail(sess, "pred", string(errors.CodeInvalidChatID))
	}

	confidence, cErr := strconv.ParseFloat(confidenceStr, 64)
	if cErr != nil || confidence < 0.0 || confidence > 1.0 {
		return replyFail(sess, "pred", string(errors.CodeInvalidConfidence))
	}
	forecast := strings.ToLower(forecastStr) == "true"

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

		now := time.Now().UTC()
		refreshed, cErr := checkAndCompleteAssertion(ctx, d, chatID, a, now)
		if cErr == nil {
			a = refreshed
		}
		if a.Completed {
			outcome, fatal = string(errors.CodeAssertionComplete), true
			return
		}
		if !a.CastingForecastDeadline.IsZero() && !now.Before(a.CastingForecastDeadline) {
			outcome, fatal = string(errors.CodeCastingDeadlinePassed), true
			return
		}

		added, paErr := d.Store.AddPrediction(ctx, assertionID, sess.UserID, confidence, forecast)
		if paErr != nil {
			slog.Error("handlers: add prediction failed", "assertion_id", assertionID, "error", paErr)
			outcome, fatal = string(errors.CodeAddFailed), true
			return
		}
		if !added {
			outcome, fatal = string(errors.CodeAddFailed), true
			return
		}

		updated, gErr := d.Store.GetAssertion(ctx, assertionID)
		if gErr == nil && updated != nil {
			a = updated
		}

		content := assertionContent(ctx, d, a)
		data, jErr := json.Marshal(content)
		if jErr == nil {
			recipients := make([]string, 0, len(members))
			for _, uid := range members {
				if uid != sess.UserID {
					recipients = append(recipients, uid)
				}
			}
			d.Events.Emit(events.Event{Prefix: "assr", Data: data, Recipients: recipients})
		}

		content["didPredict"] = true
		selfData, jErr := json.Marshal(content)
		if jErr == nil {
			d.Events.Emit(events.Event{Prefix: "assr", Data: selfData, Recipients: []string{sess.UserID}})
		}

		outcome = "added"
	})

	if !replyString(sess, "pred", outcome) {
		return false
	}
	return !fatal
}
