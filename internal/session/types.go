// Package session provides the append-only conversation store.
//
// A session owns an ordered sequence of immutable messages. Appends for one
// exchange (user turn plus resolved assistant turn) are transactional, so a
// failed turn never leaves a half-written exchange behind.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role constants for message authorship.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session groups a conversation. Created on process start or resumed by id;
// destroyed only by external retention policy.
type Session struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single conversation entry. Immutable once written; timestamps
// are non-decreasing within a session.
type Message struct {
	ID        int64
	SessionID uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}
