package domain

import (
	"time"

	"github.com/google/uuid"
)

// SendMessageCommand carries a sending intent from the live channel.
// TempID is the caller-supplied correlation id echoed back in the
// acknowledgement; it is never persisted.
type SendMessageCommand struct {
	ReceiverID uuid.UUID
	Content    string
	TempID     string
}

// HistoryCommand pages through one conversation, newest first, using a
// created-at cursor. A nil Before starts from the latest message.
type HistoryCommand struct {
	UserID    uuid.UUID
	PartnerID uuid.UUID
	Limit     int
	Before    *time.Time
}

// MarkReadCommand flags a batch of received messages as read.
type MarkReadCommand struct {
	ReaderID   uuid.UUID
	MessageIDs []uuid.UUID
}

// EditMessageCommand rewrites the content of an owned message.
type EditMessageCommand struct {
	EditorID  uuid.UUID
	MessageID uuid.UUID
	Content   string
}

// DeleteMessageCommand soft-deletes an owned message.
type DeleteMessageCommand struct {
	DeleterID uuid.UUID
	MessageID uuid.UUID
}
