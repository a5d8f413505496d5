package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"predictrix/server/internal/domain"
)

// CreateAssertion inserts a new assertion and returns its ID,
// mirroring CreateAssertionCommand.
func (s *Store) CreateAssertion(ctx context.Context, userID string, chatID int64, text string, validationDate, castingDeadline time.Time) (int64, error) {
	var assertionID int64
	err := s.QueryRowContext(ctx,
		`INSERT INTO assertions (user_id, chat_id, text, predictions, validation_date, casting_forecast_deadline)
		 VALUES ($1, $2, $3, '{}', $4, $5) RETURNING id`,
		userID, chatID, text, validationDate, castingDeadline,
	).Scan(&assertionID)
	if err != nil {
		return 0, fmt.Errorf("store: create assertion for %s: %w", userID, err)
	}
	return assertionID, nil
}

// GetAssertion loads an assertion by ID, mirroring GetAssertionQuery
// but returning the full row rather than a pre-enriched wire shape -
// handlers decide presentation.
func (s *Store) GetAssertion(ctx context.Context, assertionID int64) (*domain.Assertion, error) {
	var a domain.Assertion
	var predictionsRaw, votesRaw []byte
	a.ID = assertionID

	err := s.QueryRowContext(ctx,
		`SELECT user_id, chat_id, text, predictions, votes, validation_date,
		        casting_forecast_deadline, created_at, completed, final_answer
		 FROM assertions WHERE id = $1`, assertionID,
	).Scan(
		&a.AuthorUserID, &a.ChatID, &a.Text, &predictionsRaw, &votesRaw,
		&a.ValidationDate, &a.CastingForecastDeadline, &a.CreatedAt, &a.Completed, &a.FinalAnswer,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get assertion %d: %w", assertionID, err)
	}

	a.Predictions = map[string]domain.Prediction{}
	_ = json.Unmarshal(predictionsRaw, &a.Predictions)
	a.Votes = map[string]bool{}
	_ = json.Unmarshal(votesRaw, &a.Votes)

	return &a, nil
}

// AddPrediction records a user's first (and only) prediction on an
// assertion, mirroring AddPredictionCommand's first-write-wins rule
// (invariant I2).
func (s *Store) AddPrediction(ctx context.Context, assertionID int64, userID string, confidence float64, forecast bool) (bool, error) {
	a, err := s.GetAssertion(ctx, assertionID)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if _, exists := a.Predictions[userID]; exists {
		return false, nil
	}

	a.Predictions[userID] = domain.Prediction{Confidence: confidence, Forecast: forecast}
	data, err := json.Marshal(a.Predictions)
	if err != nil {
		return false, err
	}
	if _, err := s.ExecContext(ctx, `UPDATE assertions SET predictions = $1 WHERE id = $2`, data, assertionID); err != nil {
		return false, fmt.Errorf("store: add prediction to assertion %d: %w", assertionID, err)
	}
	return true, nil
}

// AddVote records or updates a user's casting vote on an assertion's
// final answer, mirroring AddVoteCommand.
func (s *Store) AddVote(ctx context.Context, assertionID int64, userID string, vote bool) error {
	a, err := s.GetAssertion(ctx, assertionID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("store: assertion %d not found", assertionID)
	}

	a.Votes[userID] = vote
	data, err := json.Marshal(a.Votes)
	if err != nil {
		return err
	}
	if _, err := s.ExecContext(ctx, `UPDATE assertions SET votes = $1 WHERE id = $2`, data, assertionID); err != nil {
		return fmt.Errorf("store: add vote to assertion %d: %w", assertionID, err)
	}
	return nil
}

// CompleteAssertion marks an assertion completed with its final
// answer, the terminal transition of the state machine in spec §6.
func (s *Store) CompleteAssertion(ctx context.Context, assertionID int64, finalAnswer bool) error {
	_, err := s.ExecContext(ctx,
		`UPDATE assertions SET completed = true, final_answer = $1 WHERE id = $2`,
		finalAnswer, assertionID,
	)
	if err != nil {
		return fmt.Errorf("store: complete assertion %d: %w", assertionID, err)
	}
	return nil
}
