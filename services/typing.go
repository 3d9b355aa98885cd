package services

import (
	"context"

	"whisper/contract"
	"whisper/domain/event"

	"github.com/google/uuid"
)

// TypingService relays ephemeral typing signals. Nothing is persisted
// or acknowledged: an offline receiver means a silent drop.
type TypingService struct {
	registry contract.IRegistry
}

func NewTypingService(registry contract.IRegistry) *TypingService {
	return &TypingService{registry: registry}
}

func (s *TypingService) Typing(ctx context.Context, sender *contract.Session, receiverID uuid.UUID) {
	s.relay(ctx, receiverID, event.UserTyping{UserID: sender.UserID, Username: sender.Username})
}

func (s *TypingService) StopTyping(ctx context.Context, sender *contract.Session, receiverID uuid.UUID) {
	s.relay(ctx, receiverID, event.UserStopTyping{UserID: sender.UserID, Username: sender.Username})
}

func (s *TypingService) relay(ctx context.Context, receiverID uuid.UUID, e event.DomainEvent) {
	if receiver, ok := s.registry.Lookup(receiverID); ok {
		_ = receiver.Sink.Consume(ctx, e)
	}
}
