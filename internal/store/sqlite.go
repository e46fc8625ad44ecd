package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		endpoint TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession records a new widget session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess domain.TranscriptSession) error {
	query := `
	INSERT INTO sessions (session_id, user_id, endpoint, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	err := shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.SessionID, sess.UserID, sess.Endpoint, sess.CreatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.SessionID, err)
	}
	return nil
}

// AppendMessage stores a finalized message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, e domain.TranscriptEntry) error {
	if !e.Message.Role.Valid() {
		return fmt.Errorf("append message: invalid role %q", e.Message.Role)
	}

	query := `
	INSERT INTO messages (session_id, seq, role, text, is_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, seq) DO UPDATE SET
		role = excluded.role,
		text = excluded.text,
		is_error = excluded.is_error`

	err := shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			e.SessionID, e.Seq, string(e.Message.Role), e.Message.Text,
			e.Message.IsError, e.CreatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append message %s/%d: %w", e.SessionID, e.Seq, err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.TranscriptSession, error) {
	query := `SELECT session_id, user_id, endpoint, created_at FROM sessions WHERE session_id = ?`

	var sess domain.TranscriptSession
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.SessionID, &sess.UserID, &sess.Endpoint, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &sess, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.TranscriptSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id, user_id, endpoint, created_at
		FROM sessions ORDER BY created_at DESC, session_id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []domain.TranscriptSession
	for rows.Next() {
		var sess domain.TranscriptSession
		var createdAt int64
		if err := rows.Scan(&sess.SessionID, &sess.UserID, &sess.Endpoint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.CreatedAt = time.UnixMilli(createdAt).UTC()
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns a session's messages in history order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	query := `
		SELECT session_id, seq, role, text, is_error, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var entries []domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var role string
		var createdAt int64
		if err := rows.Scan(&e.SessionID, &e.Seq, &role, &e.Message.Text, &e.Message.IsError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		e.Message.Role = domain.Role(role)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
