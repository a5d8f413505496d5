// Package lifecycle implements the assertion state machine (spec
// §4.5): Open -> Casting-closed -> Validation-open -> Completed,
// evaluated lazily whenever an assertion is read past its validation
// date, plus the scoring rule applied on completion. This is the Go
// port of the original server's ad hoc completion-and-scoring logic
// scattered across controllers.py's vote/assertion handlers,
// consolidated here into one place the way a systems rewrite should.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"predictrix/server/internal/domain"
)

const scoreMultiplier = 1000.0

// chatStats is the minimal persistence surface CheckAndComplete
// needs; internal/store.Store satisfies it, and tests can fake it.
type chatStats interface {
	GetChatStats(ctx context.Context, chatID int64) (map[string]int64, map[string]int64, error)
	UpdateChatStats(ctx context.Context, chatID int64, scores, preds map[string]int64) error
	CompleteAssertion(ctx context.Context, assertionID int64, finalAnswer bool) error
}

// CastingOpen reports whether a new prediction can still be cast.
func CastingOpen(a *domain.Assertion, now time.Time) bool {
	return now.Before(a.CastingForecastDeadline)
}

// ValidationOpen reports whether votes can be cast.
func ValidationOpen(a *domain.Assertion, now time.Time) bool {
	return !now.Before(a.ValidationDate)
}

// MajorityThreshold is ceil(memberCount/2): the number of same-valued
// votes required to decide an assertion.
func MajorityThreshold(memberCount int) int {
	return (memberCount + 1) / 2
}

// CalculateScore implements the exact scoring formula from spec §4.5:
//
//	delta = |0.5 - confidence| * 1000 * (isCorrect ? +1 : -1) + 500
//	score = truncate_to_int(delta)
//
// Truncation is toward zero (math.Trunc), not floor - spec §9's open
// question on this is explicit that negative deltas must not be
// floored, since floor(-2.3) = -3 while truncate(-2.3) = -2.
func CalculateScore(confidence float64, forecast, finalAnswer bool) int64 {
	isCorrect := forecast == finalAnswer
	sign := -1.0
	if isCorrect {
		sign = 1.0
	}
	delta := math.Abs(0.5-confidence)*scoreMultiplier*sign + scoreMultiplier/2
	return int64(math.Trunc(delta))
}

// CheckAndComplete evaluates whether a, read at time now in the
// context of a chat with the given members, should transition to
// Completed. If it does, it distributes scores to every predictor,
// persists the updated chat stats and assertion completion, and
// returns the refreshed assertion. If a is already completed, or
// validation hasn't opened, or no majority exists yet, it is
// returned unchanged (a re-evaluation happens on the next read, per
// spec §9 "Lazy completion").
func CheckAndComplete(ctx context.Context, st chatStats, chatID int64, a *domain.Assertion, members []string, now time.Time) (*domain.Assertion, error) {
	if a.Completed {
		return a, nil
	}
	if !ValidationOpen(a, now) {
		return a, nil
	}

	yes, no := 0, 0
	for _, v := range a.Votes {
		if v {
			yes++
		} else {
			no++
		}
	}
	threshold := MajorityThreshold(len(members))

	var finalAnswer bool
	switch {
	case yes >= threshold:
		finalAnswer = true
	case no >= threshold:
		finalAnswer = false
	default:
		return a, nil // no majority yet; ties leave it open
	}

	scores, preds, err := st.GetChatStats(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load chat stats: %w", err)
	}
	if scores == nil {
		scores = map[string]int64{}
	}
	if preds == nil {
		preds = map[string]int64{}
	}

	for predictor, prediction := range a.Predictions {
		score := CalculateScore(prediction.Confidence, prediction.Forecast, finalAnswer)
		scores[predictor] += score
		preds[predictor]++
	}

	if err := st.UpdateChatStats(ctx, chatID, scores, preds); err != nil {
		return nil, fmt.Errorf("lifecycle: persist chat stats: %w", err)
	}
	if err := st.CompleteAssertion(ctx, a.ID, finalAnswer); err != nil {
		return nil, fmt.Errorf("lifecycle: persist assertion completion: %w", err)
	}

	a.Completed = true
	a.FinalAnswer = finalAnswer
	return a, nil
}
