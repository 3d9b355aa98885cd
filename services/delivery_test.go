package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"whisper/contract"
	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/mocks"
	"whisper/runtime"
	"whisper/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func connect(registry *runtime.Registry, userID uuid.UUID, username string) *sink.Sink {
	events := sink.New(8)
	registry.Register(&contract.Session{
		Handle:      uuid.New(),
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now().UTC(),
		Sink:        events,
	})
	return events
}

func receive(t *testing.T, events *sink.Sink) event.DomainEvent {
	t.Helper()
	select {
	case e := <-events.Events():
		return e
	default:
		t.Fatal("expected a pushed event")
		return nil
	}
}

func TestDeliveryService_Send(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	mockUsers := mocks.NewMockIUserRepository(ctrl)
	registry := runtime.NewRegistry()
	svc := NewDeliveryService(slog.Default(), mockMessages, mockUsers, registry, 0, 0)

	alice, bob := uuid.New(), uuid.New()

	t.Run("should persist then push to a connected receiver", func(t *testing.T) {
		req := require.New(t)
		bobEvents := connect(registry, bob, "bob")

		mockUsers.EXPECT().GetByID(bob).Return(domain.User{ID: bob, Username: "bob"}, nil)
		mockMessages.EXPECT().Store(gomock.Any()).Return(nil)

		message, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: "  hello  "})
		req.NoError(err)
		req.Equal("hello", message.Content) // trimmed before persisting
		req.Equal(alice, message.SenderID)
		req.NotEqual(uuid.Nil, message.ID)

		pushed, ok := receive(t, bobEvents).(event.ReceiveMessage)
		req.True(ok)
		req.Equal(message.ID, pushed.Message.ID)
		req.Equal("hello", pushed.Message.Content)
	})

	t.Run("should persist without pushing when receiver is offline", func(t *testing.T) {
		req := require.New(t)
		offline := uuid.New()

		mockUsers.EXPECT().GetByID(offline).Return(domain.User{ID: offline}, nil)
		mockMessages.EXPECT().Store(gomock.Any()).Return(nil)

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: offline, Content: "patience"})
		req.NoError(err)
	})

	t.Run("should reject blank content without persisting", func(t *testing.T) {
		req := require.New(t)
		mockMessages.EXPECT().Store(gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: "   "})
		req.Error(err)
		req.Equal(errors.CodeInvalidArgument, errors.CodeOf(err))
	})

	t.Run("should reject oversized content without persisting", func(t *testing.T) {
		req := require.New(t)
		mockMessages.EXPECT().Store(gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: strings.Repeat("x", DefaultMaxContentLength+1)})
		req.Error(err)
		req.Equal(errors.CodeInvalidArgument, errors.CodeOf(err))
	})

	t.Run("should count characters, not bytes", func(t *testing.T) {
		req := require.New(t)

		// Multi-byte content at exactly the cap is accepted
		mockUsers.EXPECT().GetByID(bob).Return(domain.User{ID: bob}, nil)
		mockMessages.EXPECT().Store(gomock.Any()).Return(nil)

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: strings.Repeat("é", DefaultMaxContentLength)})
		req.NoError(err)

		// One character over is not
		mockMessages.EXPECT().Store(gomock.Any()).Times(0)
		_, err = svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: strings.Repeat("é", DefaultMaxContentLength+1)})
		req.Error(err)
		req.Equal(errors.CodeInvalidArgument, errors.CodeOf(err))
	})

	t.Run("should reject an unknown receiver without persisting", func(t *testing.T) {
		req := require.New(t)
		ghost := uuid.New()

		mockUsers.EXPECT().GetByID(ghost).Return(domain.User{}, errors.NotFound("user not found"))
		mockMessages.EXPECT().Store(gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: ghost, Content: "anyone there?"})
		req.Error(err)
		req.Equal(errors.CodeNotFound, errors.CodeOf(err))
	})

	t.Run("should surface a storage failure to the sender", func(t *testing.T) {
		req := require.New(t)

		mockUsers.EXPECT().GetByID(bob).Return(domain.User{ID: bob}, nil)
		mockMessages.EXPECT().Store(gomock.Any()).Return(errors.Store("store message", context.DeadlineExceeded))

		_, err := svc.Send(context.Background(), alice,
			domain.SendMessageCommand{ReceiverID: bob, Content: "doomed"})
		req.Error(err)
		req.Equal(errors.CodeInternal, errors.CodeOf(err))
	})
}

func TestDeliveryService_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	mockUsers := mocks.NewMockIUserRepository(ctrl)
	svc := NewDeliveryService(slog.Default(), mockMessages, mockUsers, runtime.NewRegistry(), 0, 0)

	alice, bob := uuid.New(), uuid.New()

	t.Run("should return the page with its cursor", func(t *testing.T) {
		req := require.New(t)
		oldest := time.Now().UTC().Add(-time.Hour)
		page := []domain.Message{{ID: uuid.New(), SenderID: alice, ReceiverID: bob, CreatedAt: oldest}}

		mockMessages.EXPECT().
			Conversation(alice, bob, 50, nil).
			Return(page, true, &oldest, nil)

		result, err := svc.History(context.Background(),
			domain.HistoryCommand{UserID: alice, PartnerID: bob, Limit: 50})
		req.NoError(err)
		req.Equal(page, result.Messages)
		req.True(result.HasMore)
		req.Equal(&oldest, result.NextCursor)
	})

	t.Run("should clamp an oversized limit", func(t *testing.T) {
		req := require.New(t)

		// The repository never sees more than the configured cap
		mockMessages.EXPECT().
			Conversation(alice, bob, DefaultMaxHistoryLimit, nil).
			Return(nil, false, nil, nil)

		_, err := svc.History(context.Background(),
			domain.HistoryCommand{UserID: alice, PartnerID: bob, Limit: 1_000_000})
		req.NoError(err)
	})

	t.Run("should reject a non-positive limit", func(t *testing.T) {
		req := require.New(t)
		mockMessages.EXPECT().Conversation(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.History(context.Background(),
			domain.HistoryCommand{UserID: alice, PartnerID: bob, Limit: 0})
		req.Error(err)
		req.Equal(errors.CodeInvalidArgument, errors.CodeOf(err))
	})
}
