package draft

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// Pure-Go SQLite driver, imported for its side effect of registering
	// the "sqlite" driver. No CGO required.
	_ "modernc.org/sqlite"

	cerrors "github.com/glowshop/supportchat/internal/errors"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 1

// SQLiteStore persists drafts in a SQLite database so they survive client
// restarts. Safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates a draft database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// busy_timeout covers concurrent access from a second client instance
	// pointed at the same profile directory.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, cerrors.DraftOpenFailed(path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, cerrors.DraftOpenFailed(path, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, cerrors.DraftOpenFailed(path, err)
	}

	return store, nil
}

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the initial schema (drafts table).
func (s *SQLiteStore) migrateToV1() error {
	const draftsTable = `
		CREATE TABLE IF NOT EXISTS drafts (
			chat_id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(draftsTable); err != nil {
		return fmt.Errorf("create drafts table: %w", err)
	}

	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		1, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

// Get returns the stored draft for the chat. Any failure to read the row
// degrades to "" so a corrupt database never blocks composing.
func (s *SQLiteStore) Get(chatID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRow("SELECT body FROM drafts WHERE chat_id = ?", chatID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ""
	}
	if err != nil {
		log.Printf("draft: reading draft for chat %s failed, treating as empty: %v", chatID, err)
		return ""
	}
	return body
}

// Set stores the draft, replacing any previous value. An empty body removes
// the row instead of storing it.
func (s *SQLiteStore) Set(chatID, body string) error {
	if body == "" {
		return s.Clear(chatID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT OR REPLACE INTO drafts (chat_id, body, updated_at)
		VALUES (?, ?, ?)
	`
	_, err := s.db.Exec(query, chatID, body, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cerrors.DraftSaveFailed(chatID, err)
	}
	return nil
}

// Clear removes the draft for the chat.
func (s *SQLiteStore) Clear(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM drafts WHERE chat_id = ?", chatID); err != nil {
		return cerrors.DraftSaveFailed(chatID, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
