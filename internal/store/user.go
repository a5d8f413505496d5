package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"predictrix/server/internal/domain"
)

// EnsureUser implements the original CreateUserCommand upsert logic:
// insert the user on first sight, otherwise refresh the profile
// fields the identity provider handed back if they drifted.
func (s *Store) EnsureUser(ctx context.Context, userID, displayName, email, photoURL string) (*domain.User, error) {
	var existingName, existingEmail, existingPhoto string
	var chatsRaw []byte
	err := s.QueryRowContext(ctx,
		`SELECT display_name, email, photo_url, chats FROM users WHERE user_id = $1`, userID,
	).Scan(&existingName, &existingEmail, &existingPhoto, &chatsRaw)

	switch {
	case err == sql.ErrNoRows:
		_, err := s.ExecContext(ctx,
			`INSERT INTO users (user_id, display_name, email, photo_url, chats) VALUES ($1, $2, $3, $4, '[]')`,
			userID, displayName, email, photoURL,
		)
		if err != nil {
			return nil, fmt.Errorf("store: insert user %s: %w", userID, err)
		}
		return &domain.User{UserID: userID, DisplayName: displayName, Email: email, PhotoURL: photoURL, Chats: []int64{}}, nil

	case err != nil:
		return nil, fmt.Errorf("store: lookup user %s: %w", userID, err)
	}

	if existingName != displayName || existingEmail != email || existingPhoto != photoURL {
		if _, err := s.ExecContext(ctx,
			`UPDATE users SET display_name = $1, email = $2, photo_url = $3 WHERE user_id = $4`,
			displayName, email, photoURL, userID,
		); err != nil {
			return nil, fmt.Errorf("store: update user %s: %w", userID, err)
		}
		existingName, existingEmail, existingPhoto = displayName, email, photoURL
	}

	var chats []int64
	if err := json.Unmarshal(chatsRaw, &chats); err != nil {
		chats = []int64{}
	}

	return &domain.User{UserID: userID, DisplayName: existingName, Email: existingEmail, PhotoURL: existingPhoto, Chats: chats}, nil
}

// GetUserProfile returns the display name and photo URL for a user.
// Callers wanting the 1-hour cache described in spec §5 wrap this
// with internal/cache themselves; the store never caches on its own.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := s.QueryRowContext(ctx,
		`SELECT display_name, photo_url FROM users WHERE user_id = $1`, userID,
	).Scan(&profile.DisplayName, &profile.PhotoURL)
	if err == sql.ErrNoRows {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("store: get profile %s: %w", userID, err)
	}
	return profile, nil
}

// GetUserChatIDs returns the chat IDs a user belongs to.
func (s *Store) GetUserChatIDs(ctx context.Context, userID string) ([]int64, error) {
	var raw []byte
	err := s.QueryRowContext(ctx, `SELECT chats FROM users WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chat ids for %s: %w", userID, err)
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, nil
	}
	return ids, nil
}

// AddChatToUser appends a chat ID to a user's chat list, if not
// already present.
func (s *Store) AddChatToUser(ctx context.Context, userID string, chatID int64) error {
	ids, err := s.GetUserChatIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == chatID {
			return nil
		}
	}
	ids = append(ids, chatID)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = s.ExecContext(ctx, `UPDATE users SET chats = $1 WHERE user_id = $2`, data, userID)
	if err != nil {
		return fmt.Errorf("store: add chat %d to user %s: %w", chatID, userID, err)
	}
	return nil
}
