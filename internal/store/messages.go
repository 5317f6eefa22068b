package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wethinkt/go-threadview/internal/thread"
)

// MaxPageSize caps message pages.
const MaxPageSize = 100

// body is the JSON column holding the structured parts of a message.
type body struct {
	Parts       []thread.ContentPart `json:"parts,omitempty"`
	Annotations []thread.Annotation  `json:"annotations,omitempty"`
	Attachments []thread.Attachment  `json:"attachments,omitempty"`
	Version     int                  `json:"version,omitempty"`
}

// AppendMessage stores a message at the end of a conversation. A missing id
// is generated; the sequence is always assigned by the store. The
// conversation's last activity moves to the message time and an update event
// is published.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, m thread.Message) (thread.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ConversationID = conversationID

	data, err := json.Marshal(body{Parts: m.Parts, Annotations: m.Annotations, Attachments: m.Attachments, Version: m.Version})
	if err != nil {
		return thread.Message{}, fmt.Errorf("encode message body: %w", err)
	}

	s.mu.Lock()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT count(*) > 0 FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
			return fmt.Errorf("check conversation: %w", err)
		}
		if !exists {
			return fmt.Errorf("conversation %s: %w", conversationID, thread.ErrNotFound)
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE conversation_id = ?`,
			conversationID).Scan(&m.Sequence); err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, sequence, created_at, model, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, conversationID, string(m.Role), m.Sequence, m.CreatedAt, m.Model, string(data)); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET last_activity = ?, model = COALESCE(NULLIF(?, ''), model)
			WHERE id = ?`, m.CreatedAt, m.Model, conversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return thread.Message{}, err
	}

	if c, err := s.Conversation(ctx, conversationID); err == nil {
		s.hub.Publish(thread.ConversationEvent{Kind: thread.EventUpdate, Conversation: c})
	}
	return m, nil
}

// FetchPage returns up to PageSize messages older than the cursor, oldest
// first. A zero cursor returns the newest page.
func (s *Store) FetchPage(ctx context.Context, req thread.PageRequest) (thread.Page, error) {
	size := req.PageSize
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}

	query := `
		SELECT id, conversation_id, role, sequence, created_at, model, body
		FROM messages
		WHERE conversation_id = ?`
	args := []any{req.ConversationID}
	if req.Cursor > 0 {
		query += ` AND sequence < ?`
		args = append(args, req.Cursor)
	}
	query += ` ORDER BY sequence DESC LIMIT ?`
	args = append(args, size+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return thread.Page{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var page thread.Page
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return thread.Page{}, err
		}
		page.Messages = append(page.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return thread.Page{}, fmt.Errorf("iterate messages: %w", err)
	}
	if len(page.Messages) > size {
		page.Messages = page.Messages[:size]
		page.HasMore = true
	}
	slices.Reverse(page.Messages)
	return page, nil
}

// UpdateMessage replaces the streamed content of a stored message and bumps
// its version, the way a still-generating reply is rewritten. Nil patch
// fields are left untouched.
func (s *Store) UpdateMessage(ctx context.Context, conversationID, messageID string, p thread.Patch) (thread.Message, error) {
	s.mu.Lock()
	var m thread.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, conversation_id, role, sequence, created_at, model, body
			FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
		var err error
		if m, err = scanMessage(row); err != nil {
			return fmt.Errorf("message %s: %w", messageID, thread.ErrNotFound)
		}
		if p.Parts != nil {
			m.Parts = p.Parts
		}
		if p.Annotations != nil {
			m.Annotations = p.Annotations
		}
		if p.Attachments != nil {
			m.Attachments = p.Attachments
		}
		m.Version++
		data, err := json.Marshal(body{Parts: m.Parts, Annotations: m.Annotations, Attachments: m.Attachments, Version: m.Version})
		if err != nil {
			return fmt.Errorf("encode message body: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET body = ? WHERE conversation_id = ? AND id = ?`,
			string(data), conversationID, messageID); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity = ? WHERE id = ?`, time.Now().UTC(), conversationID)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return thread.Message{}, err
	}

	if c, err := s.Conversation(ctx, conversationID); err == nil {
		s.hub.Publish(thread.ConversationEvent{Kind: thread.EventUpdate, Conversation: c})
	}
	return m, nil
}

// DeleteMessages removes messages of one conversation. Unknown ids are ignored.
func (s *Store) DeleteMessages(ctx context.Context, conversationID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, conversationID)
	for _, id := range ids {
		args = append(args, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id = ? AND id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bookmarks WHERE conversation_id = ? AND message_id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("delete bookmarks: %w", err)
		}
		return nil
	})
}

func scanMessage(row scanner) (thread.Message, error) {
	var (
		m           thread.Message
		role        string
		model, data sql.NullString
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Sequence, &m.CreatedAt, &model, &data); err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	m.Role = thread.Role(role)
	m.Model = model.String
	if data.Valid && data.String != "" {
		var b body
		if err := json.Unmarshal([]byte(data.String), &b); err != nil {
			return m, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		m.Parts, m.Annotations, m.Attachments, m.Version = b.Parts, b.Annotations, b.Attachments, b.Version
	}
	return m, nil
}
