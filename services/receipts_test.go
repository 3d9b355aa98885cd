package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"whisper/domain"
	"whisper/domain/event"
	"whisper/errors"
	"whisper/mocks"
	"whisper/runtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReceiptService_MarkRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMessages := mocks.NewMockIMessageRepository(ctrl)
	registry := runtime.NewRegistry()
	svc := NewReceiptService(slog.Default(), mockMessages, registry)

	alice, bob := uuid.New(), uuid.New()

	t.Run("should notify each sender once with their own ids", func(t *testing.T) {
		req := require.New(t)
		aliceEvents := connect(registry, alice, "alice")
		ids := []uuid.UUID{uuid.New(), uuid.New()}

		mockMessages.EXPECT().
			MarkRead(bob, ids, gomock.Any()).
			Return(map[uuid.UUID][]uuid.UUID{alice: ids}, nil)

		readAt, err := svc.MarkRead(context.Background(),
			domain.MarkReadCommand{ReaderID: bob, MessageIDs: ids})
		req.NoError(err)
		req.False(readAt.IsZero())

		receipt, ok := receive(t, aliceEvents).(event.MessagesRead)
		req.True(ok)
		req.Equal(ids, receipt.MessageIDs)
		req.Equal(bob, receipt.ReadBy)
		req.Equal(readAt, receipt.ReadAt)

		// Exactly one event, never one per message
		select {
		case e := <-aliceEvents.Events():
			t.Fatalf("unexpected second event: %T", e)
		default:
		}
	})

	t.Run("should emit nothing when no row changed", func(t *testing.T) {
		req := require.New(t)
		ids := []uuid.UUID{uuid.New()}

		mockMessages.EXPECT().
			MarkRead(bob, ids, gomock.Any()).
			Return(map[uuid.UUID][]uuid.UUID{}, nil)

		_, err := svc.MarkRead(context.Background(),
			domain.MarkReadCommand{ReaderID: bob, MessageIDs: ids})
		req.NoError(err)
	})

	t.Run("should skip a sender without a live session", func(t *testing.T) {
		req := require.New(t)
		offline := uuid.New()
		ids := []uuid.UUID{uuid.New()}

		mockMessages.EXPECT().
			MarkRead(bob, ids, gomock.Any()).
			Return(map[uuid.UUID][]uuid.UUID{offline: ids}, nil)

		readAt, err := svc.MarkRead(context.Background(),
			domain.MarkReadCommand{ReaderID: bob, MessageIDs: ids})
		req.NoError(err)
		req.False(readAt.IsZero())
	})

	t.Run("should surface a storage failure", func(t *testing.T) {
		req := require.New(t)
		ids := []uuid.UUID{uuid.New()}

		mockMessages.EXPECT().
			MarkRead(bob, ids, gomock.Any()).
			Return(nil, errors.Store("mark read", context.DeadlineExceeded))

		readAt, err := svc.MarkRead(context.Background(),
			domain.MarkReadCommand{ReaderID: bob, MessageIDs: ids})
		req.Error(err)
		req.Equal(time.Time{}, readAt)
	})
}
