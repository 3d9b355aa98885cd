package services

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/repositories"

	"github.com/google/uuid"
)

// DefaultMaxContentLength bounds a message body after trimming, counted
// in characters, not bytes.
const DefaultMaxContentLength = 5000

// DefaultMaxHistoryLimit caps one history page regardless of what the
// caller asks for.
const DefaultMaxHistoryLimit = 200

// DeliveryService coordinates the hand-off between durable storage and
// live push: a message is persisted first, acknowledged to its sender,
// and only then pushed to the receiver if one is connected. The ack and
// the push are independent steps; a missed push is recovered through a
// later history fetch, never a retroactive delivery.
type DeliveryService struct {
	log              *slog.Logger
	messages         repositories.IMessageRepository
	users            repositories.IUserRepository
	registry         contract.IRegistry
	maxContentLength int
	maxHistoryLimit  int
}

func NewDeliveryService(log *slog.Logger, messages repositories.IMessageRepository,
	users repositories.IUserRepository, registry contract.IRegistry,
	maxContentLength, maxHistoryLimit int) *DeliveryService {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	if maxHistoryLimit <= 0 {
		maxHistoryLimit = DefaultMaxHistoryLimit
	}
	return &DeliveryService{
		log:              log,
		messages:         messages,
		users:            users,
		registry:         registry,
		maxContentLength: maxContentLength,
		maxHistoryLimit:  maxHistoryLimit,
	}
}

// Send validates, persists, and pushes a new message, returning the
// persisted row for the sender's acknowledgement. Nothing is persisted
// when validation or receiver lookup fails.
func (s *DeliveryService) Send(ctx context.Context, senderID uuid.UUID,
	cmd domain.SendMessageCommand) (domain.Message, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return domain.Message{}, errors.InvalidArg("message content is empty")
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return domain.Message{}, errors.InvalidArg("message content is too long")
	}

	if _, err := s.users.GetByID(cmd.ReceiverID); err != nil {
		return domain.Message{}, err
	}

	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: cmd.ReceiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.messages.Store(message); err != nil {
		return domain.Message{}, err
	}

	// Push after the write is durable. The receiver being offline is
	// not an error: the message waits in storage.
	if receiver, ok := s.registry.Lookup(cmd.ReceiverID); ok {
		if err := receiver.Sink.Consume(ctx, event.ReceiveMessage{
			Message: event.FromMessage(message),
		}); err != nil {
			s.log.Debug("Live push skipped", "receiver_id", cmd.ReceiverID, "error", err)
		}
	}
	return message, nil
}

// HistoryPage is one page of a conversation, oldest first.
type HistoryPage struct {
	Messages   []domain.Message
	HasMore    bool
	NextCursor *time.Time
}

// History pages through a conversation descending from the cursor and
// returns the page ascending for display.
func (s *DeliveryService) History(_ context.Context, cmd domain.HistoryCommand) (HistoryPage, error) {
	if cmd.Limit <= 0 {
		return HistoryPage{}, errors.InvalidArg("limit must be positive")
	}
	if cmd.Limit > s.maxHistoryLimit {
		cmd.Limit = s.maxHistoryLimit
	}
	messages, hasMore, nextCursor, err := s.messages.Conversation(
		cmd.UserID, cmd.PartnerID, cmd.Limit, cmd.Before)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Messages: messages, HasMore: hasMore, NextCursor: nextCursor}, nil
}
