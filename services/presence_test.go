package services

import (
	"context"
	"log/slog"
	"testing"

	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/mocks"
	"whisper/runtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceService_Connected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockUsers := mocks.NewMockIUserRepository(ctrl)
	registry := runtime.NewRegistry()
	svc := NewPresenceService(slog.Default(), mockUsers, registry)

	alice, bob, clara := uuid.New(), uuid.New(), uuid.New()
	aliceEvents := connect(registry, alice, "alice")
	bobEvents := connect(registry, bob, "bob")

	t.Run("should flag online then announce to everyone else", func(t *testing.T) {
		req := require.New(t)
		claraEvents := connect(registry, clara, "clara")
		claraSession, _ := registry.Lookup(clara)

		mockUsers.EXPECT().SetPresence(clara, true, gomock.Any()).Return(nil)

		req.NoError(svc.Connected(context.Background(), claraSession))

		for _, events := range []struct {
			name string
			got  event.DomainEvent
		}{
			{"alice", receive(t, aliceEvents)},
			{"bob", receive(t, bobEvents)},
		} {
			online, ok := events.got.(event.UserOnline)
			req.True(ok, "expected user_online for %s", events.name)
			req.Equal(clara, online.UserID)
			req.Equal("clara", online.Username)
		}

		// The connecting user never hears their own announcement
		select {
		case e := <-claraEvents.Events():
			t.Fatalf("unexpected event for clara: %T", e)
		default:
		}
	})

	t.Run("should fail without broadcasting when the flag write fails", func(t *testing.T) {
		req := require.New(t)
		ghostSession, _ := registry.Lookup(alice)

		mockUsers.EXPECT().SetPresence(alice, true, gomock.Any()).
			Return(errors.Store("set presence", context.DeadlineExceeded))

		err := svc.Connected(context.Background(), ghostSession)
		req.Error(err)

		select {
		case e := <-bobEvents.Events():
			t.Fatalf("unexpected broadcast after failed flag write: %T", e)
		default:
		}
	})
}

func TestPresenceService_Disconnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockUsers := mocks.NewMockIUserRepository(ctrl)
	registry := runtime.NewRegistry()
	svc := NewPresenceService(slog.Default(), mockUsers, registry)

	alice, bob := uuid.New(), uuid.New()
	connect(registry, alice, "alice")
	bobEvents := connect(registry, bob, "bob")
	aliceSession, _ := registry.Lookup(alice)

	t.Run("should announce offline with last seen", func(t *testing.T) {
		req := require.New(t)
		mockUsers.EXPECT().SetPresence(alice, false, gomock.Any()).Return(nil)

		svc.Disconnected(context.Background(), aliceSession)

		offline, ok := receive(t, bobEvents).(event.UserOffline)
		req.True(ok)
		req.Equal(alice, offline.UserID)
		req.False(offline.LastSeen.IsZero())
	})

	t.Run("should still broadcast when the flag write fails", func(t *testing.T) {
		req := require.New(t)
		mockUsers.EXPECT().SetPresence(alice, false, gomock.Any()).
			Return(errors.Store("set presence", context.DeadlineExceeded))

		svc.Disconnected(context.Background(), aliceSession)

		_, ok := receive(t, bobEvents).(event.UserOffline)
		req.True(ok)
	})
}

func TestPresenceService_Queries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockUsers := mocks.NewMockIUserRepository(ctrl)
	svc := NewPresenceService(slog.Default(), mockUsers, runtime.NewRegistry())

	alice, bob := uuid.New(), uuid.New()

	t.Run("should list online users excluding the caller", func(t *testing.T) {
		req := require.New(t)
		online := []domain.User{{ID: bob, Username: "bob", Online: true}}

		mockUsers.EXPECT().OnlineUsers(alice).Return(online, nil)

		users, err := svc.OnlineUsers(alice)
		req.NoError(err)
		req.Equal(online, users)
	})

	t.Run("should report a single user's durable status", func(t *testing.T) {
		req := require.New(t)
		mockUsers.EXPECT().GetByID(bob).Return(domain.User{ID: bob, Online: false}, nil)

		user, err := svc.Status(bob)
		req.NoError(err)
		req.False(user.Online)
	})
}
