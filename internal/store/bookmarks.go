package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// SetBookmark adds or removes a user's bookmark on a message. The message
// text is copied into the bookmark so it survives later edits.
func (s *Store) SetBookmark(ctx context.Context, userID, conversationID, messageID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !on {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM bookmarks WHERE user_id = ? AND message_id = ?`, userID, messageID); err != nil {
			return fmt.Errorf("delete bookmark: %w", err)
		}
		return nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, role, sequence, created_at, model, body
		FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
	m, err := scanMessage(row)
	if err != nil {
		return fmt.Errorf("bookmark message %s: %w", messageID, thread.ErrNotFound)
	}
	content := m.Text()
	if strings.TrimSpace(content) == "" {
		content = "[Empty message]"
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, conversation_id, message_id, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`, userID, conversationID, messageID, content); err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	return nil
}

// Bookmarks reports which of the given messages the user has bookmarked. With
// no ids, every bookmark in the conversation is returned.
func (s *Store) Bookmarks(ctx context.Context, userID, conversationID string, messageIDs []string) (map[string]bool, error) {
	query := `SELECT message_id FROM bookmarks WHERE user_id = ? AND conversation_id = ?`
	args := []any{userID, conversationID}
	if len(messageIDs) > 0 {
		query += ` AND message_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",") + `)`
		for _, id := range messageIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// UserBookmarks binds the bookmark methods to one user.
type UserBookmarks struct {
	store  *Store
	userID string
}

// ForUser returns the bookmarks of userID.
func (s *Store) ForUser(userID string) UserBookmarks {
	return UserBookmarks{store: s, userID: userID}
}

func (u UserBookmarks) SetBookmark(ctx context.Context, conversationID, messageID string, on bool) error {
	return u.store.SetBookmark(ctx, u.userID, conversationID, messageID, on)
}

func (u UserBookmarks) Bookmarks(ctx context.Context, conversationID string, messageIDs []string) (map[string]bool, error) {
	return u.store.Bookmarks(ctx, u.userID, conversationID, messageIDs)
}
