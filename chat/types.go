package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID            string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one transcript entry. The log is append-only and ordered by
// CreatedAt ascending.
type Message struct {
	ID        uuid.UUID
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// SessionStore persists conversation transcripts. Sessions are created
// implicitly on first append and never deleted here; retention is an
// operational concern.
type SessionStore interface {
	// Append adds a message, creating the session if needed and bumping its
	// LastMessageAt.
	Append(ctx context.Context, sessionID, role, content string) error

	// Recent returns up to n of the most recent messages, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)
}
