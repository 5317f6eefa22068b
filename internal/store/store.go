// Package store persists conversations, messages and bookmarks in DuckDB and
// publishes conversation-list changes to in-process subscribers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id VARCHAR PRIMARY KEY,
    title VARCHAR,
    model VARCHAR,
    created_at TIMESTAMP,
    last_activity TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id VARCHAR PRIMARY KEY,
    conversation_id VARCHAR,
    role VARCHAR,
    sequence BIGINT,
    created_at TIMESTAMP,
    model VARCHAR,
    body VARCHAR
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence);

CREATE TABLE IF NOT EXISTS bookmarks (
    user_id VARCHAR,
    conversation_id VARCHAR,
    message_id VARCHAR,
    content VARCHAR,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, message_id)
);
`

// Store is the DuckDB-backed persistence layer. It is safe for concurrent use;
// writes are serialized so message sequences stay dense per conversation.
type Store struct {
	db   *sql.DB
	path string

	mu  sync.Mutex // serializes writes
	hub *Hub
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if _, err := db.Exec("SET enable_external_access=false"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set security settings: %w", err)
	}

	tuilog.Log.Info("Store.Open: database ready", "path", path)
	return &Store{db: db, path: path, hub: NewHub()}, nil
}

// Close closes the database and all subscriptions.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Changes returns the change feed of the conversation list.
func (s *Store) Changes() *Hub { return s.hub }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
