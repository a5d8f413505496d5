package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictrix/server/internal/domain"
)

func TestCalculateScoreCorrectForecast(t *testing.T) {
	// confidence 0.9, correct: |0.5-0.9|*1000 + 500 = 400+500 = 900
	assert.Equal(t, int64(900), CalculateScore(0.9, true, true))
}

func TestCalculateScoreIncorrectForecastTruncatesTowardZero(t *testing.T) {
	// confidence 0.9, incorrect: -(|0.5-0.9|*1000) + 500 = -400+500 = 100
	assert.Equal(t, int64(100), CalculateScore(0.9, true, false))
	// confidence 0.99, incorrect: -(490) + 500 = 10
	assert.Equal(t, int64(10), CalculateScore(0.99, true, false))
	// confidence 1.0, incorrect: -(500) + 500 = 0, the lowest score a
	// confidence inside [0,1] can produce.
	score := CalculateScore(1.0, true, false)
	assert.Equal(t, int64(0), score)
}

func TestCalculateScoreTruncationNotFloor(t *testing.T) {
	// Pick a confidence producing a fractional negative delta and confirm
	// int64(math.Trunc(x)) semantics (toward zero) rather than floor.
	// confidence=1.0023, incorrect: delta = -(0.5023*1000)+500 = -502.3+500 = -2.3,
	// which truncates to -2 where floor would give -3.
	got := CalculateScore(1.0023, false, true)
	assert.Equal(t, int64(-2), got)
}

func TestMajorityThreshold(t *testing.T) {
	assert.Equal(t, 1, MajorityThreshold(1))
	assert.Equal(t, 1, MajorityThreshold(2))
	assert.Equal(t, 2, MajorityThreshold(3))
	assert.Equal(t, 2, MajorityThreshold(4))
}

func TestCastingAndValidationOpen(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Assertion{
		CastingForecastDeadline: now.Add(time.Hour),
		ValidationDate:          now.Add(48 * time.Hour),
	}
	assert.True(t, CastingOpen(a, now))
	assert.False(t, ValidationOpen(a, now))

	past := now.Add(72 * time.Hour)
	assert.False(t, CastingOpen(a, past))
	assert.True(t, ValidationOpen(a, past))
}

// fakeStats is an in-memory chatStats double for CheckAndComplete tests.
type fakeStats struct {
	scores      map[string]int64
	preds       map[string]int64
	completedID int64
	finalAnswer bool
	statsErr    error
	completeErr error
}

func newFakeStats() *fakeStats {
	return &fakeStats{scores: map[string]int64{}, preds: map[string]int64{}}
}

func (f *fakeStats) GetChatStats(ctx context.Context, chatID int64) (map[string]int64, map[string]int64, error) {
	if f.statsErr != nil {
		return nil, nil, f.statsErr
	}
	return f.scores, f.preds, nil
}

func (f *fakeStats) UpdateChatStats(ctx context.Context, chatID int64, scores, preds map[string]int64) error {
	f.scores = scores
	f.preds = preds
	return nil
}

func (f *fakeStats) CompleteAssertion(ctx context.Context, assertionID int64, finalAnswer bool) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedID = assertionID
	f.finalAnswer = finalAnswer
	return nil
}

func TestCheckAndCompleteAlreadyCompletedIsNoop(t *testing.T) {
	st := newFakeStats()
	a := &domain.Assertion{ID: 1, Completed: true}
	out, err := CheckAndComplete(context.Background(), st, 1, a, []string{"u1"}, time.Now())
	require.NoError(t, err)
	assert.Same(t, a, out)
	assert.Equal(t, int64(0), st.completedID)
}

func TestCheckAndCompleteValidationNotOpenIsNoop(t *testing.T) {
	st := newFakeStats()
	now := time.Now().UTC()
	a := &domain.Assertion{ID: 2, ValidationDate: now.Add(time.Hour)}
	out, err := CheckAndComplete(context.Background(), st, 1, a, []string{"u1"}, now)
	require.NoError(t, err)
	assert.False(t, out.Completed)
}

func TestCheckAndCompleteTieLeavesOpen(t *testing.T) {
	st := newFakeStats()
	now := time.Now().UTC()
	a := &domain.Assertion{
		ID:             3,
		ValidationDate: now.Add(-time.Minute),
		Votes:          map[string]bool{"u1": true, "u2": false},
	}
	out, err := CheckAndComplete(context.Background(), st, 1, a, []string{"u1", "u2", "u3", "u4"}, now)
	require.NoError(t, err)
	assert.False(t, out.Completed)
}

func TestCheckAndCompleteMajorityCompletesAndScores(t *testing.T) {
	st := newFakeStats()
	now := time.Now().UTC()
	a := &domain.Assertion{
		ID:             4,
		ChatID:         9,
		ValidationDate: now.Add(-time.Minute),
		Votes:          map[string]bool{"u1": true, "u2": true, "u3": false},
		Predictions: map[string]domain.Prediction{
			"u1": {Confidence: 0.9, Forecast: true},
			"u4": {Confidence: 0.2, Forecast: false},
		},
	}
	out, err := CheckAndComplete(context.Background(), st, 9, a, []string{"u1", "u2", "u3"}, now)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.True(t, out.FinalAnswer)
	assert.Equal(t, int64(4), st.completedID)
	assert.Equal(t, int64(900), st.scores["u1"]) // correct, high confidence
	assert.Equal(t, int64(1), st.preds["u1"])
	assert.Equal(t, int64(200), st.scores["u4"]) // incorrect forecast, lower confidence
	assert.Equal(t, int64(1), st.preds["u4"])
}

func TestCheckAndCompletePropagatesStatsError(t *testing.T) {
	st := newFakeStats()
	st.statsErr = assert.AnError
	now := time.Now().UTC()
	a := &domain.Assertion{
		ID:             5,
		ValidationDate: now.Add(-time.Minute),
		Votes:          map[string]bool{"u1": true},
	}
	_, err := CheckAndComplete(context.Background(), st, 1, a, []string{"u1"}, now)
	assert.Error(t, err)
}
