//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"strings"
	"time"

	"whisper/domain"
	"whisper/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	Conversation(userID, partnerID uuid.UUID, limit int, before *time.Time) ([]domain.Message, bool, *time.Time, error)
	MarkRead(readerID uuid.UUID, ids []uuid.UUID, readAt time.Time) (map[uuid.UUID][]uuid.UUID, error)
	Edit(id, editorID uuid.UUID, content string, at time.Time) (domain.Message, error)
	Delete(id, deleterID uuid.UUID, at time.Time) (domain.Message, error)
}

// storedMessage is the on-disk record. Timestamps are unix nanoseconds
// so the value round-trips exactly with the nanosecond-keyed layout.
type storedMessage struct {
	ID              uuid.UUID `cbor:"1,keyasint"`
	SenderID        uuid.UUID `cbor:"2,keyasint"`
	ReceiverID      uuid.UUID `cbor:"3,keyasint"`
	Content         string    `cbor:"4,keyasint"`
	CreatedAt       int64     `cbor:"5,keyasint"`
	Read            bool      `cbor:"6,keyasint"`
	ReadAt          *int64    `cbor:"7,keyasint,omitempty"`
	Edited          bool      `cbor:"8,keyasint"`
	EditedAt        *int64    `cbor:"9,keyasint,omitempty"`
	OriginalContent *string   `cbor:"10,keyasint,omitempty"`
	Deleted         bool      `cbor:"11,keyasint"`
	DeletedAt       *int64    `cbor:"12,keyasint,omitempty"`
}

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// conversationPrefix identifies the unordered pair {a, b}: both parties
// scan the same key range regardless of who sent what.
func conversationPrefix(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return fmt.Sprintf("dm:%s~%s:", first, second)
}

// messageKey orders messages chronologically inside a conversation.
// The 19-digit zero-padded nanosecond timestamp keeps lexicographic and
// chronological order aligned; the trailing id disambiguates messages
// persisted in the same nanosecond.
func messageKey(m storedMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		conversationPrefix(m.SenderID, m.ReceiverID), m.CreatedAt, m.ID))
}

func refKey(id uuid.UUID) []byte { return []byte("dmref:" + id.String()) }

// Store persists a message and its id index in one transaction.
func (r *MessageRepository) Store(message domain.Message) error {
	record := toStored(message)
	value, err := cbor.Marshal(record)
	if err != nil {
		return errors.Store("encode message", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(record)
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(refKey(record.ID), key)
	})
	if err != nil {
		return errors.Store("store message", err)
	}
	return nil
}

func (r *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var record storedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		return readMessage(txn, id, &record)
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.Message{}, errors.NotFound("message not found")
		}
		return domain.Message{}, errors.Store("get message", err)
	}
	return toDomain(record), nil
}

// Conversation pages backwards from the cursor and returns the page in
// ascending chronological order. HasMore is true iff the page is full;
// the next cursor is then the created-at of the oldest returned row.
func (r *MessageRepository) Conversation(userID, partnerID uuid.UUID, limit int, before *time.Time) ([]domain.Message, bool, *time.Time, error) {
	var page []storedMessage
	prefix := []byte(conversationPrefix(userID, partnerID))

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Without a cursor, seek past every possible timestamp. With one,
		// seek to the bare padded timestamp: real keys at that instant
		// carry an id suffix and sort after it, so the reverse iterator
		// lands strictly before the cursor row.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		if before != nil {
			seekKey = append(append([]byte{}, prefix...),
				[]byte(fmt.Sprintf("%019d", before.UnixNano()))...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(page) < limit; it.Next() {
			var record storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			page = append(page, record)
		}
		return nil
	})
	if err != nil {
		return nil, false, nil, errors.Store("load conversation", err)
	}

	// Newest-first on disk scan, oldest-first for display.
	messages := lo.Reverse(lo.Map(page, func(item storedMessage, _ int) domain.Message {
		return toDomain(item)
	}))

	hasMore := len(messages) == limit && limit > 0
	var nextCursor *time.Time
	if hasMore {
		nextCursor = lo.ToPtr(messages[0].CreatedAt)
	}
	return messages, hasMore, nextCursor, nil
}

// MarkRead flips every listed message that is still unread and addressed
// to the reader, all sharing one read timestamp. The predicate lives
// inside the transaction, so a retry with already-read ids changes no
// row. Returns the updated ids grouped by sender for receipt fan-out.
func (r *MessageRepository) MarkRead(readerID uuid.UUID, ids []uuid.UUID, readAt time.Time) (map[uuid.UUID][]uuid.UUID, error) {
	updated := make(map[uuid.UUID][]uuid.UUID)
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			var record storedMessage
			if err := readMessage(txn, id, &record); err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			if record.ReceiverID != readerID || record.Read {
				continue
			}
			record.Read = true
			record.ReadAt = lo.ToPtr(readAt.UTC().UnixNano())
			if err := writeMessage(txn, record); err != nil {
				return err
			}
			updated[record.SenderID] = append(updated[record.SenderID], record.ID)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Store("mark read", err)
	}
	return updated, nil
}

// Edit rewrites an owned, not-deleted message. The pre-edit content is
// captured into OriginalContent only on the first edit.
func (r *MessageRepository) Edit(id, editorID uuid.UUID, content string, at time.Time) (domain.Message, error) {
	var record storedMessage
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := readMessage(txn, id, &record); err != nil {
			return err
		}
		if record.SenderID != editorID {
			return errors.Forbidden("only the sender can edit a message")
		}
		if record.Deleted {
			return errors.FailedPrecondition("cannot edit a deleted message")
		}
		if !record.Edited {
			record.OriginalContent = lo.ToPtr(record.Content)
		}
		record.Content = content
		record.Edited = true
		record.EditedAt = lo.ToPtr(at.UTC().UnixNano())
		return writeMessage(txn, record)
	})
	if err != nil {
		return domain.Message{}, mapMutationErr("edit message", err)
	}
	return toDomain(record), nil
}

// Delete soft-deletes an owned message, replacing its content with the
// tombstone. The row is kept for history; the transition is terminal.
func (r *MessageRepository) Delete(id, deleterID uuid.UUID, at time.Time) (domain.Message, error) {
	var record storedMessage
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := readMessage(txn, id, &record); err != nil {
			return err
		}
		if record.SenderID != deleterID {
			return errors.Forbidden("only the sender can delete a message")
		}
		if record.Deleted {
			// Terminal state: deleting twice is a no-op.
			return nil
		}
		record.Content = domain.Tombstone
		record.Deleted = true
		record.DeletedAt = lo.ToPtr(at.UTC().UnixNano())
		return writeMessage(txn, record)
	})
	if err != nil {
		return domain.Message{}, mapMutationErr("delete message", err)
	}
	return toDomain(record), nil
}

func mapMutationErr(op string, err error) error {
	if err == badger.ErrKeyNotFound {
		return errors.NotFound("message not found")
	}
	if errors.CodeOf(err) != errors.CodeUnknown {
		return err
	}
	return errors.Store(op, err)
}

func readMessage(txn *badger.Txn, id uuid.UUID, out *storedMessage) error {
	ref, err := txn.Get(refKey(id))
	if err != nil {
		return err
	}
	var key []byte
	if err := ref.Value(func(val []byte) error {
		key = append([]byte{}, val...)
		return nil
	}); err != nil {
		return err
	}
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, out)
	})
}

func writeMessage(txn *badger.Txn, record storedMessage) error {
	value, err := cbor.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(record), value)
}

func toStored(m domain.Message) storedMessage {
	return storedMessage{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt.UnixNano(),
		Read:            m.Read,
		ReadAt:          toNanos(m.ReadAt),
		Edited:          m.Edited,
		EditedAt:        toNanos(m.EditedAt),
		OriginalContent: m.OriginalContent,
		Deleted:         m.Deleted,
		DeletedAt:       toNanos(m.DeletedAt),
	}
}

func toDomain(m storedMessage) domain.Message {
	return domain.Message{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Content:         m.Content,
		CreatedAt:       time.Unix(0, m.CreatedAt).UTC(),
		Read:            m.Read,
		ReadAt:          fromNanos(m.ReadAt),
		Edited:          m.Edited,
		EditedAt:        fromNanos(m.EditedAt),
		OriginalContent: m.OriginalContent,
		Deleted:         m.Deleted,
		DeletedAt:       fromNanos(m.DeletedAt),
	}
}

func toNanos(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	return lo.ToPtr(t.UnixNano())
}

func fromNanos(nanos *int64) *time.Time {
	if nanos == nil {
		return nil
	}
	return lo.ToPtr(time.Unix(0, *nanos).UTC())
}
