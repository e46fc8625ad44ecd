// Package store provides transcript persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// ErrSessionNotFound is returned when a transcript session does not exist.
var ErrSessionNotFound = errors.New("transcript session not found")

// Repository defines the interface for persisting chat transcripts.
type Repository interface {
	// CreateSession records a new widget session. Recording an existing
	// session ID is a no-op.
	CreateSession(ctx context.Context, s domain.TranscriptSession) error

	// AppendMessage stores a finalized message at its history position.
	// Writing the same position twice keeps the latest message.
	AppendMessage(ctx context.Context, e domain.TranscriptEntry) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.TranscriptSession, error)

	// ListSessions returns the most recent sessions first.
	ListSessions(ctx context.Context, limit int) ([]domain.TranscriptSession, error)

	// ListMessages returns a session's messages in history order.
	ListMessages(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
