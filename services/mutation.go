package services

import (
	"context"
	"log/slog"
	"time"

	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/repositories"

	"github.com/google/uuid"
)

// MutationService edits and soft-deletes existing messages. Ownership
// and state guards run inside the store's conditional update, never
// behind an in-process lock, so concurrent edit/delete races resolve in
// the store. Both mutations broadcast to the other party and echo back
// to the caller, keeping every device of the caller consistent.
type MutationService struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	registry contract.IRegistry
}

func NewMutationService(log *slog.Logger, messages repositories.IMessageRepository,
	registry contract.IRegistry) *MutationService {
	return &MutationService{log: log, messages: messages, registry: registry}
}

// Edit rewrites an owned message. The pre-edit content is preserved only
// on the first edit; later edits never touch the stored original.
func (s *MutationService) Edit(ctx context.Context, cmd domain.EditMessageCommand) (domain.Message, error) {
	message, err := s.messages.Edit(cmd.MessageID, cmd.EditorID, cmd.Content, time.Now().UTC())
	if err != nil {
		return domain.Message{}, err
	}

	s.notifyParties(ctx, message, event.MessageUpdated{
		ID:       message.ID,
		Content:  message.Content,
		IsEdited: message.Edited,
		EditedAt: message.EditedAt,
		SenderID: message.SenderID,
	})
	return message, nil
}

// Delete soft-deletes an owned message, substituting the tombstone.
// The broadcast is symmetric with edit.
func (s *MutationService) Delete(ctx context.Context, cmd domain.DeleteMessageCommand) (domain.Message, error) {
	message, err := s.messages.Delete(cmd.MessageID, cmd.DeleterID, time.Now().UTC())
	if err != nil {
		return domain.Message{}, err
	}

	s.notifyParties(ctx, message, event.MessageDeleted{
		ID:       message.ID,
		SenderID: message.SenderID,
	})
	return message, nil
}

// notifyParties pushes the mutation to both sides of the conversation:
// the other party sees the change, the mutating side's own session gets
// the echo.
func (s *MutationService) notifyParties(ctx context.Context, message domain.Message, e event.DomainEvent) {
	for _, userID := range []uuid.UUID{message.SenderID, message.ReceiverID} {
		session, ok := s.registry.Lookup(userID)
		if !ok {
			continue
		}
		if err := session.Sink.Consume(ctx, e); err != nil {
			s.log.Debug("Mutation fan-out skipped", "user_id", userID, "error", err)
		}
	}
}
