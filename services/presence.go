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

// PresenceService flips the durable online flag and fans the transition
// out to every other live session. The flag write always completes
// before the broadcast, so queries reading the durable flag are stale
// for at most that single write.
type PresenceService struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	registry contract.IRegistry
}

func NewPresenceService(log *slog.Logger, users repositories.IUserRepository,
	registry contract.IRegistry) *PresenceService {
	return &PresenceService{log: log, users: users, registry: registry}
}

// Connected marks the identity online and announces it to everyone else.
func (s *PresenceService) Connected(ctx context.Context, session *contract.Session) error {
	if err := s.users.SetPresence(session.UserID, true, time.Now().UTC()); err != nil {
		return err
	}
	s.broadcastExcept(ctx, session.UserID, event.UserOnline{
		UserID:   session.UserID,
		Username: session.Username,
	})
	return nil
}

// Disconnected is attempted unconditionally on every disconnect; a
// failing flag write is logged and never blocks the close path.
func (s *PresenceService) Disconnected(ctx context.Context, session *contract.Session) {
	lastSeen := time.Now().UTC()
	if err := s.users.SetPresence(session.UserID, false, lastSeen); err != nil {
		s.log.Error("Failed to mark user offline",
			"user_id", session.UserID, "error", err)
	}
	s.broadcastExcept(ctx, session.UserID, event.UserOffline{
		UserID:   session.UserID,
		Username: session.Username,
		LastSeen: lastSeen,
	})
}

// OnlineUsers lists everyone durably online, excluding the caller.
func (s *PresenceService) OnlineUsers(exclude uuid.UUID) ([]domain.User, error) {
	return s.users.OnlineUsers(exclude)
}

// Status reads one identity's durable presence.
func (s *PresenceService) Status(id uuid.UUID) (domain.User, error) {
	return s.users.GetByID(id)
}

func (s *PresenceService) broadcastExcept(ctx context.Context, exclude uuid.UUID, e event.DomainEvent) {
	for _, other := range s.registry.Snapshot() {
		if other.UserID == exclude {
			continue
		}
		if err := other.Sink.Consume(ctx, e); err != nil {
			s.log.Debug("Presence fan-out skipped a session",
				"user_id", other.UserID, "error", err)
		}
	}
}
