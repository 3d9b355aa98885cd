// Package event defines the named events pushed over a live connection.
// Each event knows its wire name; the transport wraps it in an envelope
// and serializes the payload as-is.
package event

import (
	"time"

	"whisper/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventName() string
}

// Message is the wire form of a persisted message.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"senderId"`
	ReceiverID uuid.UUID  `json:"receiverId"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	IsEdited   bool       `json:"isEdited"`
	EditedAt   *time.Time `json:"editedAt,omitempty"`
	IsDeleted  bool       `json:"isDeleted"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.Read,
		ReadAt:     m.ReadAt,
		IsEdited:   m.Edited,
		EditedAt:   m.EditedAt,
		IsDeleted:  m.Deleted,
		DeletedAt:  m.DeletedAt,
	}
}

// Connected acknowledges a freshly established connection.
type Connected struct {
	UserID      uuid.UUID `json:"userId"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (Connected) EventName() string { return "connected" }

// MessageSent acknowledges a send to its originator, echoing the
// correlation id so an optimistic local echo can be reconciled.
type MessageSent struct {
	TempID  string  `json:"tempId"`
	Message Message `json:"message"`
}

func (MessageSent) EventName() string { return "message_sent" }

// MessageError reports a failed acked request to its originator.
type MessageError struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

func (MessageError) EventName() string { return "message_error" }

// ReceiveMessage pushes a freshly persisted message to its receiver.
type ReceiveMessage struct {
	Message Message `json:"message"`
}

func (ReceiveMessage) EventName() string { return "receive_message" }

type UserTyping struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

func (UserTyping) EventName() string { return "user_typing" }

type UserStopTyping struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

func (UserStopTyping) EventName() string { return "user_stop_typing" }

// MessagesRead notifies a sender that a batch of their messages was read.
// All ids in the batch share the same read timestamp.
type MessagesRead struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
	ReadAt     time.Time   `json:"readAt"`
	ReadBy     uuid.UUID   `json:"readBy"`
}

func (MessagesRead) EventName() string { return "messages_read" }

type MessageUpdated struct {
	ID       uuid.UUID  `json:"id"`
	Content  string     `json:"content"`
	IsEdited bool       `json:"isEdited"`
	EditedAt *time.Time `json:"editedAt,omitempty"`
	SenderID uuid.UUID  `json:"senderId"`
}

func (MessageUpdated) EventName() string { return "message_updated" }

type MessageDeleted struct {
	ID       uuid.UUID `json:"id"`
	SenderID uuid.UUID `json:"senderId"`
}

func (MessageDeleted) EventName() string { return "message_deleted" }

// History answers a get_history request.
type History struct {
	PartnerID  uuid.UUID  `json:"partnerId"`
	Messages   []Message  `json:"messages"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *time.Time `json:"nextCursor,omitempty"`
}

func (History) EventName() string { return "history" }

// UserStatus answers a get_user_status request from the durable flag.
type UserStatus struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

func (UserStatus) EventName() string { return "user_status" }

// OnlineUsers answers a get_online_users request.
type OnlineUsers struct {
	Users []UserStatus `json:"users"`
}

func (OnlineUsers) EventName() string { return "online_users" }

// Error reports a failed fire-and-forget request, naming the inbound
// event that caused it.
type Error struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

func (Error) EventName() string { return "error" }

type UserOnline struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

func (UserOnline) EventName() string { return "user_online" }

type UserOffline struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

func (UserOffline) EventName() string { return "user_offline" }
