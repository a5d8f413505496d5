// Package domain holds the in-memory shapes of the chat/assertion data
// model described by the wire protocol. These types are what handlers
// operate on; internal/store is responsible for getting them to and
// from the persistence adapter's JSON columns.
package domain

import "time"

// User is created on first token presentation and never destroyed by
// the core. Profile fields are refreshed from the identity provider's
// token on every subsequent login.
type User struct {
	UserID      string   `json:"userId"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PhotoURL    string   `json:"photoUrl"`
	Chats       []int64  `json:"chats"`
}

// Profile is the subset of User surfaced to other members (sender
// enrichment in msgs/sndm, member listing, etc.).
type Profile struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// Chat is created by a member and only destroyed by external admin
// action, which this core never performs.
type Chat struct {
	ID                 int64
	Name               string
	LastMessage         string
	Members             []string
	Messages             []MessageEntry
	ScoreSumPerUser      map[string]int64
	PredictionsPerUser   map[string]int64
}

// ChatSummary is the shape returned by the chts handler.
type ChatSummary struct {
	Name        string `json:"name"`
	LastMessage string `json:"lastMessage"`
	ChatID      string `json:"chatId"`
}

// MessageEntry is a tagged sum type: either a TextMessage or a
// reference to an Assertion by ID. The JSON encoding carries an
// explicit "type" discriminant rather than relying on a numeric-string
// heuristic (see spec §9's design note on this).
type MessageEntry struct {
	Type        string    // "text" or "assertion"
	Sender      string    // set when Type == "text"
	Timestamp   time.Time // set when Type == "text"
	Content     string    // set when Type == "text"
	AssertionID int64     // set when Type == "assertion"
}

// Prediction is one forecaster's confidence-weighted yes/no call on an
// assertion, written at most once per user (invariant I2).
type Prediction struct {
	Confidence float64 `json:"confidence"`
	Forecast   bool    `json:"forecast"`
}

// Assertion is a yes/no question with a casting deadline and a
// validation date. Invariant I1: CastingForecastDeadline precedes
// ValidationDate, both strictly after CreatedAt.
type Assertion struct {
	ID                      int64
	AuthorUserID            string
	ChatID                  int64
	Text                    string
	Predictions             map[string]Prediction
	Votes                   map[string]bool
	ValidationDate          time.Time
	CastingForecastDeadline time.Time
	CreatedAt               time.Time
	Completed               bool
	FinalAnswer             bool
}

// MemberStanding is the per-member ELO row returned by memb.
type MemberStanding struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	ELO         int64  `json:"elo"`
}

// Elo computes the derived ELO for a member: scoreSum/predictions,
// truncated toward zero, when predictions > 0, else the neutral
// baseline of 500.
func Elo(scoreSum, predictions int64) int64 {
	if predictions <= 0 {
		return 500
	}
	return scoreSum / predictions
}
