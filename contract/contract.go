//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"time"

	"whisper/domain/event"

	"github.com/google/uuid"
)

// EventSink is the outbound side of one live connection. Consume must
// never block the caller: a full buffer drops the event (there is no
// backpressure or redelivery on this channel).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close()
}

// Session binds one live connection to exactly one verified identity for
// its whole lifetime. Handle disambiguates successive connections of the
// same user so a late disconnect cannot evict a newer session.
type Session struct {
	Handle      uuid.UUID
	UserID      uuid.UUID
	Username    string
	ConnectedAt time.Time
	Sink        EventSink
}

// IRegistry is the process-wide map from identity to live session.
// It is injected into every handler; nothing reaches it through
// package-level state.
type IRegistry interface {
	// Register stores the session, replacing and returning any previous
	// session of the same identity (single connection per identity).
	Register(s *Session) (replaced *Session)
	// Unregister removes the entry only if it still belongs to handle.
	// It reports whether an entry was actually removed.
	Unregister(userID, handle uuid.UUID) bool
	Lookup(userID uuid.UUID) (*Session, bool)
	// Snapshot returns all live sessions, for presence fan-out.
	Snapshot() []*Session
}

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}
