package repositories

import (
	"fmt"
	"testing"
	"time"

	"whisper/domain"
	"whisper/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Reduced to 16 Mo for testing (avoid 20 Go of storage)
func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(sender, receiver uuid.UUID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at.UTC(),
	}
}

func Test_Store_And_Load_Conversation_Sorted(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()
	at := time.Now().UTC()

	messages := []domain.Message{
		newMessage(alice, bob, "salut", at),
		newMessage(bob, alice, "hello", at.Add(1*time.Minute)),
		newMessage(alice, bob, "ça va ?", at.Add(2*time.Minute)),
	}
	for _, m := range messages {
		req.NoError(repo.Store(m))
	}

	// When fetching the conversation from either side
	fetched, hasMore, cursor, err := repo.Conversation(alice, bob, 10, nil)
	req.NoError(err)

	// Then the messages are sorted oldest first
	req.Len(fetched, 3)
	req.Equal("salut", fetched[0].Content)
	req.Equal("hello", fetched[1].Content)
	req.Equal("ça va ?", fetched[2].Content)
	req.False(hasMore)
	req.Nil(cursor)

	// And both parties see the same range
	mirror, _, _, err := repo.Conversation(bob, alice, 10, nil)
	req.NoError(err)
	req.Equal(fetched, mirror)
}

func Test_Conversation_Excludes_Other_Pairs(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob, clara := uuid.New(), uuid.New(), uuid.New()
	at := time.Now().UTC()

	req.NoError(repo.Store(newMessage(alice, bob, "for bob", at)))
	req.NoError(repo.Store(newMessage(alice, clara, "for clara", at.Add(time.Second))))

	fetched, _, _, err := repo.Conversation(alice, bob, 10, nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("for bob", fetched[0].Content)
}

func Test_Conversation_Pagination(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()
	now := time.Now().UTC()

	// 1. Insertion de 10 messages (du plus vieux au plus récent)
	for i := 1; i <= 10; i++ {
		req.NoError(repo.Store(newMessage(alice, bob,
			fmt.Sprintf("Message %d", i), now.Add(time.Duration(i)*time.Minute))))
	}

	// --- PAGE 1 ---
	page1, hasMore1, cursor1, err := repo.Conversation(alice, bob, 4, nil)
	req.NoError(err)
	req.Len(page1, 4)
	req.Equal("Message 7", page1[0].Content)
	req.Equal("Message 10", page1[3].Content) // Le plus récent
	req.True(hasMore1)
	req.NotNil(cursor1)

	// --- PAGE 2 ---
	page2, hasMore2, cursor2, err := repo.Conversation(alice, bob, 4, cursor1)
	req.NoError(err)
	req.Len(page2, 4)
	// Vérification de l'absence de doublon : la p2 s'arrête au message 6
	req.Equal("Message 3", page2[0].Content)
	req.Equal("Message 6", page2[3].Content)
	req.True(hasMore2)
	req.NotNil(cursor2)

	// --- PAGE 3 (Fin) ---
	page3, hasMore3, _, err := repo.Conversation(alice, bob, 4, cursor2)
	req.NoError(err)
	req.Len(page3, 2) // Il ne reste que 2 messages (1 et 2)
	req.Equal("Message 1", page3[0].Content)
	req.Equal("Message 2", page3[1].Content)
	req.False(hasMore3)
}

func Test_Get_By_ID(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	stored := newMessage(alice, bob, "findable", time.Now())
	req.NoError(repo.Store(stored))

	fetched, err := repo.Get(stored.ID)
	req.NoError(err)
	req.Equal(stored.ID, fetched.ID)
	req.Equal("findable", fetched.Content)

	_, err = repo.Get(uuid.New())
	req.Error(err)
	req.Equal(errors.CodeNotFound, errors.CodeOf(err))
}

func Test_MarkRead_Flips_Only_Addressed_Unread(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()
	now := time.Now().UTC()

	toBob1 := newMessage(alice, bob, "one", now)
	toBob2 := newMessage(alice, bob, "two", now.Add(time.Second))
	toAlice := newMessage(bob, alice, "reply", now.Add(2*time.Second))
	for _, m := range []domain.Message{toBob1, toBob2, toAlice} {
		req.NoError(repo.Store(m))
	}

	// When bob acknowledges a batch including a message addressed to
	// alice and an unknown id
	readAt := now.Add(3 * time.Second)
	updated, err := repo.MarkRead(bob,
		[]uuid.UUID{toBob1.ID, toBob2.ID, toAlice.ID, uuid.New()}, readAt)
	req.NoError(err)

	// Then only bob's own unread messages flip, grouped by sender
	req.Len(updated, 1)
	req.ElementsMatch([]uuid.UUID{toBob1.ID, toBob2.ID}, updated[alice])

	fetched, err := repo.Get(toBob1.ID)
	req.NoError(err)
	req.True(fetched.Read)
	req.Equal(readAt, *fetched.ReadAt)

	untouched, err := repo.Get(toAlice.ID)
	req.NoError(err)
	req.False(untouched.Read)
}

func Test_MarkRead_Retry_Changes_Nothing(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "once", time.Now())
	req.NoError(repo.Store(message))

	firstReadAt := time.Now().UTC()
	updated, err := repo.MarkRead(bob, []uuid.UUID{message.ID}, firstReadAt)
	req.NoError(err)
	req.Len(updated, 1)

	// A retry with a later timestamp flips no row and keeps the
	// original read timestamp
	updated, err = repo.MarkRead(bob, []uuid.UUID{message.ID}, firstReadAt.Add(time.Hour))
	req.NoError(err)
	req.Empty(updated)

	fetched, err := repo.Get(message.ID)
	req.NoError(err)
	req.Equal(firstReadAt, *fetched.ReadAt)
}

func Test_Edit_Preserves_First_Original(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "first draft", time.Now())
	req.NoError(repo.Store(message))

	edited, err := repo.Edit(message.ID, alice, "second draft", time.Now().UTC())
	req.NoError(err)
	req.True(edited.Edited)
	req.Equal("second draft", edited.Content)
	req.Equal("first draft", *edited.OriginalContent)

	// A second edit never touches the stored original
	edited, err = repo.Edit(message.ID, alice, "third draft", time.Now().UTC())
	req.NoError(err)
	req.Equal("third draft", edited.Content)
	req.Equal("first draft", *edited.OriginalContent)
}

func Test_Edit_Rejects_Non_Sender(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "mine", time.Now())
	req.NoError(repo.Store(message))

	_, err := repo.Edit(message.ID, bob, "stolen", time.Now().UTC())
	req.Error(err)
	req.Equal(errors.CodePermissionDenied, errors.CodeOf(err))

	// The content is untouched
	fetched, err := repo.Get(message.ID)
	req.NoError(err)
	req.Equal("mine", fetched.Content)
}

func Test_Delete_Substitutes_Tombstone(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "regret", time.Now())
	req.NoError(repo.Store(message))

	deleted, err := repo.Delete(message.ID, alice, time.Now().UTC())
	req.NoError(err)
	req.True(deleted.Deleted)
	req.Equal(domain.Tombstone, deleted.Content)
	req.NotNil(deleted.DeletedAt)

	// The row stays in the conversation
	fetched, _, _, err := repo.Conversation(alice, bob, 10, nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal(domain.Tombstone, fetched[0].Content)
}

func Test_Delete_Is_Terminal(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "gone", time.Now())
	req.NoError(repo.Store(message))

	first, err := repo.Delete(message.ID, alice, time.Now().UTC())
	req.NoError(err)

	// Deleting twice is a no-op returning the same state
	second, err := repo.Delete(message.ID, alice, time.Now().Add(time.Hour).UTC())
	req.NoError(err)
	req.Equal(first.DeletedAt, second.DeletedAt)

	// A deleted message can never be edited again
	_, err = repo.Edit(message.ID, alice, "resurrect", time.Now().UTC())
	req.Error(err)
	req.Equal(errors.CodeFailedPrecondition, errors.CodeOf(err))
}

func Test_Delete_Rejects_Non_Sender(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t))
	alice, bob := uuid.New(), uuid.New()

	message := newMessage(alice, bob, "protected", time.Now())
	req.NoError(repo.Store(message))

	_, err := repo.Delete(message.ID, bob, time.Now().UTC())
	req.Error(err)
	req.Equal(errors.CodePermissionDenied, errors.CodeOf(err))
}
