package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tombstone replaces the content of a soft-deleted message.
const Tombstone = "This message was deleted"

// Message is a durable direct message between exactly two users.
// It is never physically removed: delete is a one-way soft transition,
// read and edited are independent flags.
type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Content    string
	CreatedAt  time.Time

	Read   bool
	ReadAt *time.Time

	Edited          bool
	EditedAt        *time.Time
	OriginalContent *string

	Deleted   bool
	DeletedAt *time.Time
}

// ConversationWith returns the other party of the message from the
// point of view of userID.
func (m Message) ConversationWith(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
