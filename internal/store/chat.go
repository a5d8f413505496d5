package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"predictrix/server/internal/domain"
)

// CreateChat creates a chat with the creator as its sole initial
// member and returns the new chat ID, mirroring CreateChatCommand.
func (s *Store) CreateChat(ctx context.Context, name, creatorUserID string) (int64, error) {
	members, _ := json.Marshal([]string{creatorUserID})
	scores, _ := json.Marshal(map[string]int64{creatorUserID: 0})
	preds, _ := json.Marshal(map[string]int64{creatorUserID: 0})

	var chatID int64
	err := s.QueryRowContext(ctx,
		`INSERT INTO chats (name, members, score_sum_per_user, predictions_per_user)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		name, members, scores, preds,
	).Scan(&chatID)
	if err != nil {
		return 0, fmt.Errorf("store: create chat %q: %w", name, err)
	}

	if err := s.AddChatToUser(ctx, creatorUserID, chatID); err != nil {
		return 0, err
	}
	return chatID, nil
}

// GetChatSummaries returns name/lastMessage/id for each requested chat,
// mirroring GetChatsQuery.
func (s *Store) GetChatSummaries(ctx context.Context, chatIDs []int64) ([]domain.ChatSummary, error) {
	if len(chatIDs) == 0 {
		return []domain.ChatSummary{}, nil
	}

	placeholders := make([]string, len(chatIDs))
	args := make([]interface{}, len(chatIDs))
	for i, id := range chatIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, name, last_message FROM chats WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get chat summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatSummary
	for rows.Next() {
		var id int64
		var name, lastMessage string
		if err := rows.Scan(&id, &name, &lastMessage); err != nil {
			return nil, fmt.Errorf("store: scan chat summary: %w", err)
		}
		out = append(out, domain.ChatSummary{
			Name:        name,
			LastMessage: lastMessage,
			ChatID:      fmt.Sprintf("%d", id),
		})
	}
	return out, rows.Err()
}

// GetChatMembers returns the member userIds of a chat.
func (s *Store) GetChatMembers(ctx context.Context, chatID int64) ([]string, error) {
	var raw []byte
	err := s.QueryRowContext(ctx, `SELECT members FROM chats WHERE id = $1`, chatID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get members of chat %d: %w", chatID, err)
	}
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, nil
	}
	return members, nil
}

// GetChatMessages returns the message log of a chat in append order.
func (s *Store) GetChatMessages(ctx context.Context, chatID int64) ([]domain.MessageEntry, error) {
	var raw []byte
	err := s.QueryRowContext(ctx, `SELECT messages FROM chats WHERE id = $1`, chatID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get messages of chat %d: %w", chatID, err)
	}
	var msgs []domain.MessageEntry
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("store: decode messages of chat %d: %w", chatID, err)
	}
	return msgs, nil
}

// AppendMessage appends one entry to a chat's message log and, for
// text messages, updates LastMessage to "{sender}: {content}" exactly
// as AppendChatMessageCommand does.
func (s *Store) AppendMessage(ctx context.Context, chatID int64, entry domain.MessageEntry, senderDisplayName string) error {
	msgs, err := s.GetChatMessages(ctx, chatID)
	if err != nil {
		return err
	}
	msgs = append(msgs, entry)
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("store: encode messages for chat %d: %w", chatID, err)
	}

	if entry.Type == "text" {
		lastMessage := fmt.Sprintf("%s: %s", senderDisplayName, entry.Content)
		_, err = s.ExecContext(ctx,
			`UPDATE chats SET messages = $1, last_message = $2 WHERE id = $3`,
			data, lastMessage, chatID,
		)
	} else {
		_, err = s.ExecContext(ctx, `UPDATE chats SET messages = $1 WHERE id = $2`, data, chatID)
	}
	if err != nil {
		return fmt.Errorf("store: append message to chat %d: %w", chatID, err)
	}
	return nil
}

// JoinChat adds a user to a chat's membership, initializes their
// per-chat stats to zero, and records the chat on the user's own
// chat list, mirroring JoinChatCommand.
func (s *Store) JoinChat(ctx context.Context, chatID int64, userID string) error {
	members, err := s.GetChatMembers(ctx, chatID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == userID {
			return s.AddChatToUser(ctx, userID, chatID)
		}
	}
	members = append(members, userID)
	memberData, err := json.Marshal(members)
	if err != nil {
		return err
	}
	if _, err := s.ExecContext(ctx, `UPDATE chats SET members = $1 WHERE id = $2`, memberData, chatID); err != nil {
		return fmt.Errorf("store: join chat %d: %w", chatID, err)
	}

	scores, preds, err := s.GetChatStats(ctx, chatID)
	if err != nil {
		return err
	}
	if _, ok := scores[userID]; !ok {
		scores[userID] = 0
	}
	if _, ok := preds[userID]; !ok {
		preds[userID] = 0
	}
	if err := s.UpdateChatStats(ctx, chatID, scores, preds); err != nil {
		return err
	}

	return s.AddChatToUser(ctx, userID, chatID)
}

// GetChatStats returns the per-user score sums and prediction counts
// for a chat, mirroring GetChatStatsQuery.
func (s *Store) GetChatStats(ctx context.Context, chatID int64) (map[string]int64, map[string]int64, error) {
	var scoresRaw, predsRaw []byte
	err := s.QueryRowContext(ctx,
		`SELECT score_sum_per_user, predictions_per_user FROM chats WHERE id = $1`, chatID,
	).Scan(&scoresRaw, &predsRaw)
	if err == sql.ErrNoRows {
		return map[string]int64{}, map[string]int64{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: get stats of chat %d: %w", chatID, err)
	}

	scores := map[string]int64{}
	preds := map[string]int64{}
	_ = json.Unmarshal(scoresRaw, &scores)
	_ = json.Unmarshal(predsRaw, &preds)
	return scores, preds, nil
}

// UpdateChatStats persists the per-user score sums and prediction
// counts for a chat, called whenever an assertion completes and
// scores get distributed.
func (s *Store) UpdateChatStats(ctx context.Context, chatID int64, scores, preds map[string]int64) error {
	scoresData, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	predsData, err := json.Marshal(preds)
	if err != nil {
		return err
	}
	_, err = s.ExecContext(ctx,
		`UPDATE chats SET score_sum_per_user = $1, predictions_per_user = $2 WHERE id = $3`,
		scoresData, predsData, chatID,
	)
	if err != nil {
		return fmt.Errorf("store: update stats of chat %d: %w", chatID, err)
	}
	return nil
}
