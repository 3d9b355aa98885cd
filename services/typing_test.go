package services

import (
	"context"
	"testing"
	"time"

	"whisper/contract"
	"whisper/domain/event"
	"whisper/runtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTypingService_Relay(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()
	svc := NewTypingService(registry)

	alice, bob := uuid.New(), uuid.New()
	bobEvents := connect(registry, bob, "bob")
	sender := &contract.Session{
		Handle:      uuid.New(),
		UserID:      alice,
		Username:    "alice",
		ConnectedAt: time.Now().UTC(),
	}

	// When alice types then stops
	svc.Typing(context.Background(), sender, bob)
	svc.StopTyping(context.Background(), sender, bob)

	// Then bob sees both signals in order
	typing, ok := receive(t, bobEvents).(event.UserTyping)
	req.True(ok)
	req.Equal(alice, typing.UserID)
	req.Equal("alice", typing.Username)

	stopped, ok := receive(t, bobEvents).(event.UserStopTyping)
	req.True(ok)
	req.Equal(alice, stopped.UserID)
}

func TestTypingService_OfflineReceiverIsSilentDrop(t *testing.T) {
	registry := runtime.NewRegistry()
	svc := NewTypingService(registry)

	sender := &contract.Session{Handle: uuid.New(), UserID: uuid.New(), Username: "alice"}

	// Nothing is persisted and nothing blocks
	svc.Typing(context.Background(), sender, uuid.New())
	svc.StopTyping(context.Background(), sender, uuid.New())
}
