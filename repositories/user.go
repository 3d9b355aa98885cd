//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"time"

	"whisper/domain"
	"whisper/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, passwordHash string) (domain.User, error)
	GetByID(id uuid.UUID) (domain.User, error)
	GetByUsername(username string) (User, error)
	SetPresence(id uuid.UUID, online bool, lastSeen time.Time) error
	OnlineUsers(exclude uuid.UUID) ([]domain.User, error)
}

// User is the repository-level representation, carrying the password
// hash that must never leave the auth path. Timestamps are unix
// nanoseconds so they round-trip exactly.
type User struct {
	ID           uuid.UUID `cbor:"1,keyasint"`
	Username     string    `cbor:"2,keyasint"`
	PasswordHash string    `cbor:"3,keyasint"`
	Online       bool      `cbor:"4,keyasint"`
	LastSeen     int64     `cbor:"5,keyasint"`
	CreatedAt    int64     `cbor:"6,keyasint"`
}

func (u User) toDomain() domain.User {
	return domain.User{
		ID:       u.ID,
		Username: u.Username,
		Online:   u.Online,
		LastSeen: time.Unix(0, u.LastSeen).UTC(),
	}
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id uuid.UUID) []byte    { return []byte("user:id:" + id.String()) }
func usernameKey(name string) []byte { return []byte("user:name:" + name) }
func userPrefix() []byte             { return []byte("user:id:") }

// CreateUser persists a new user and its username index in one
// transaction; the uniqueness check and the writes are atomic.
func (r *UserRepository) CreateUser(username, passwordHash string) (domain.User, error) {
	record := User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().UnixNano(),
	}
	value, err := cbor.Marshal(record)
	if err != nil {
		return domain.User{}, errors.Store("encode user", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(username)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(userKey(record.ID), value); err != nil {
			return err
		}
		return txn.Set(usernameKey(username), []byte(record.ID.String()))
	})
	if err != nil {
		if errors.CodeOf(err) != errors.CodeUnknown {
			return domain.User{}, err
		}
		return domain.User{}, errors.Store("create user", err)
	}
	return record.toDomain(), nil
}

func (r *UserRepository) GetByID(id uuid.UUID) (domain.User, error) {
	var record User
	err := r.db.View(func(txn *badger.Txn) error {
		return readUser(txn, id, &record)
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.User{}, errors.NotFound("user not found")
		}
		return domain.User{}, errors.Store("get user", err)
	}
	return record.toDomain(), nil
}

// GetByUsername resolves the username index and returns the full record,
// hash included, for credential verification.
func (r *UserRepository) GetByUsername(username string) (User, error) {
	var record User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if err != nil {
			return err
		}
		var id uuid.UUID
		if err := item.Value(func(val []byte) error {
			id, err = uuid.Parse(string(val))
			return err
		}); err != nil {
			return err
		}
		return readUser(txn, id, &record)
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return User{}, errors.NotFound("user not found")
		}
		return User{}, errors.Store("get user", err)
	}
	return record, nil
}

// SetPresence flips the durable online flag and stamps last-seen in one
// conditional read-modify-write transaction.
func (r *UserRepository) SetPresence(id uuid.UUID, online bool, lastSeen time.Time) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		var record User
		if err := readUser(txn, id, &record); err != nil {
			return err
		}
		record.Online = online
		record.LastSeen = lastSeen.UTC().UnixNano()
		value, err := cbor.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), value)
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return errors.NotFound("user not found")
		}
		return errors.Store("set presence", err)
	}
	return nil
}

// OnlineUsers scans the durable online flag, not the live registry, so
// its answer matches what Status reports for a single user.
func (r *UserRepository) OnlineUsers(exclude uuid.UUID) ([]domain.User, error) {
	var users []domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = userPrefix()
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record User
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			if record.Online && record.ID != exclude {
				users = append(users, record.toDomain())
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Store("list online users", err)
	}
	return users, nil
}

func readUser(txn *badger.Txn, id uuid.UUID, out *User) error {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, out)
	})
}
