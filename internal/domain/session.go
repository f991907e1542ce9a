package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one user submission inside a chat session, together with
// the aggregate result it owns. The reconciler compares the message's
// creation time against the recovery grace window for units that never
// received a provider task id.
type Message struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Result    *AggregateResult
}

// Session is the in-memory view of a chat that the reconciler scans
// when the chat becomes active again.
type Session struct {
	ChatID   uuid.UUID
	Messages []*Message
}
