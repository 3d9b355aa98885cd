package services

import (
	"context"
	"log/slog"
	"time"

	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/repositories"
)

// ReceiptService flips read state for a batch of received messages and
// notifies the senders. The conditional update makes retries free: a
// second call with the same ids changes no row and emits nothing.
type ReceiptService struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	registry contract.IRegistry
}

func NewReceiptService(log *slog.Logger, messages repositories.IMessageRepository,
	registry contract.IRegistry) *ReceiptService {
	return &ReceiptService{log: log, messages: messages, registry: registry}
}

// MarkRead marks every still-unread message in the batch addressed to
// the reader, all sharing one read timestamp. Each sender with a live
// session receives one messages_read event covering their own messages.
func (s *ReceiptService) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) (time.Time, error) {
	readAt := time.Now().UTC()
	updated, err := s.messages.MarkRead(cmd.ReaderID, cmd.MessageIDs, readAt)
	if err != nil {
		return time.Time{}, err
	}

	for senderID, messageIDs := range updated {
		sender, ok := s.registry.Lookup(senderID)
		if !ok {
			continue
		}
		if err := sender.Sink.Consume(ctx, event.MessagesRead{
			MessageIDs: messageIDs,
			ReadAt:     readAt,
			ReadBy:     cmd.ReaderID,
		}); err != nil {
			s.log.Debug("Read receipt skipped", "sender_id", senderID, "error", err)
		}
	}
	return readAt, nil
}
