package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// MaxListLimit caps conversation list pages.
const MaxListLimit = 200

// CreateConversation inserts a new conversation and publishes a created
// event. A non-empty initialMessage is stored as the first user message.
func (s *Store) CreateConversation(ctx context.Context, title, model, initialMessage string) (thread.ConversationSummary, error) {
	now := time.Now().UTC()
	c := thread.ConversationSummary{
		ID:           uuid.NewString(),
		Title:        title,
		Model:        model,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Model, c.CreatedAt, c.LastActivity)
	s.mu.Unlock()
	if err != nil {
		return thread.ConversationSummary{}, fmt.Errorf("insert conversation: %w", err)
	}

	s.hub.Publish(thread.ConversationEvent{Kind: thread.EventCreated, Conversation: c, InitialMessage: initialMessage})

	if initialMessage != "" {
		m, err := s.AppendMessage(ctx, c.ID, thread.Message{
			Role:      thread.RoleUser,
			CreatedAt: now,
			Parts:     []thread.ContentPart{{Type: thread.PartText, Text: initialMessage}},
		})
		if err != nil {
			return c, fmt.Errorf("store initial message: %w", err)
		}
		c.LastActivity = m.CreatedAt
	}
	return c, nil
}

// Conversation returns one conversation.
func (s *Store) Conversation(ctx context.Context, id string) (thread.ConversationSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, created_at, last_activity
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return thread.ConversationSummary{}, fmt.Errorf("conversation %s: %w", id, thread.ErrNotFound)
	}
	return c, err
}

// RenameConversation changes a title and publishes a title event.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", id, thread.ErrNotFound)
	}
	c, err := s.Conversation(ctx, id)
	if err != nil {
		return err
	}
	s.hub.Publish(thread.ConversationEvent{Kind: thread.EventTitle, Conversation: thread.ConversationSummary{ID: c.ID, Title: c.Title}})
	return nil
}

// DeleteConversation removes a conversation with its messages and bookmarks.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		n, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("delete bookmarks: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, thread.ErrNotFound)
	}
	s.hub.Publish(thread.ConversationEvent{Kind: thread.EventDelete, Conversation: thread.ConversationSummary{ID: id}})
	return nil
}

// ListConversations returns a page of conversations, last activity
// descending. The cursor is the opaque NextCursor of the previous page.
func (s *Store) ListConversations(ctx context.Context, cursor string, limit int) (thread.ConversationPage, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return thread.ConversationPage{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model, created_at, last_activity
		FROM conversations
		ORDER BY last_activity DESC, created_at ASC, id ASC
		LIMIT ? OFFSET ?`, limit+1, offset)
	if err != nil {
		return thread.ConversationPage{}, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var page thread.ConversationPage
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return thread.ConversationPage{}, err
		}
		page.Conversations = append(page.Conversations, c)
	}
	if err := rows.Err(); err != nil {
		return thread.ConversationPage{}, fmt.Errorf("iterate conversations: %w", err)
	}
	if len(page.Conversations) > limit {
		page.Conversations = page.Conversations[:limit]
		page.NextCursor = strconv.Itoa(offset + limit)
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (thread.ConversationSummary, error) {
	var (
		c            thread.ConversationSummary
		title, model sql.NullString
	)
	if err := row.Scan(&c.ID, &title, &model, &c.CreatedAt, &c.LastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan conversation: %w", err)
	}
	c.Title = title.String
	c.Model = model.String
	return c, nil
}
