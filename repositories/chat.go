//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"cmp"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	roomPrefix    = "room:"
	messagePrefix = "msg:"
	// conflictRetries bounds the read-modify-write retries on participant lists.
	conflictRetries = 5
)

// IChatRepository is the durable side of the chat: rooms, their participant
// lists and their message history.
type IChatRepository interface {
	SaveMessage(ctx context.Context, message chat.Message) error
	// GetMessages returns at most limit messages, most recent first.
	GetMessages(ctx context.Context, roomID chat.RoomID, limit int) ([]chat.Message, error)
	// GetRoom returns errors.ErrRoomNotFound for an unknown room.
	GetRoom(ctx context.Context, roomID chat.RoomID) (chat.Room, error)
	CreateRoom(ctx context.Context, name string) (chat.Room, error)
	// EnsureRoom creates the room with this id and name unless it already exists.
	EnsureRoom(ctx context.Context, roomID chat.RoomID, name string) (chat.Room, error)
	AddParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error
	RemoveParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error
	ListRooms(ctx context.Context) ([]chat.Room, error)
}

// ChatRepository stores rooms and messages in BadgerDB.
//
// Keys:
//
//	room:{room_id}
//	msg:{room_id}:{unix_nano_019}:{uuid}
//
// The zero padded timestamp keeps messages of a room in chronological order,
// the uuid separates two messages stored during the same nanosecond.
type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) ChatRepository {
	return ChatRepository{db: db, log: log}
}

func roomKey(roomID chat.RoomID) []byte {
	return []byte(roomPrefix + string(roomID))
}

func messageKey(message chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix, message.RoomID, message.Timestamp.UnixNano(), message.ID))
}

func (r ChatRepository) SaveMessage(_ context.Context, message chat.Message) error {
	bytes, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

// GetMessages walks the room prefix backwards from the far future.
func (r ChatRepository) GetMessages(_ context.Context, roomID chat.RoomID, limit int) ([]chat.Message, error) {
	messages := make([]chat.Message, 0)
	if limit <= 0 {
		return messages, nil
	}
	prefix := []byte(fmt.Sprintf("%s%s:", messagePrefix, roomID))

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r ChatRepository) GetRoom(_ context.Context, roomID chat.RoomID) (chat.Room, error) {
	var room chat.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	return room, err
}

func (r ChatRepository) CreateRoom(_ context.Context, name string) (chat.Room, error) {
	room := chat.Room{
		ID:           chat.RoomID(uuid.NewString()),
		Name:         name,
		Participants: []chat.UserID{},
		CreatedAt:    time.Now().UTC(),
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		return putRoom(txn, room)
	})
	if err != nil {
		return chat.Room{}, err
	}
	return room, nil
}

func (r ChatRepository) EnsureRoom(_ context.Context, roomID chat.RoomID, name string) (chat.Room, error) {
	var room chat.Room
	err := r.update(func(txn *badger.Txn) error {
		existing, err := getRoom(txn, roomID)
		if err == nil {
			room = existing
			return nil
		}
		if !goerrors.Is(err, errors.ErrRoomNotFound) {
			return err
		}
		room = chat.Room{ID: roomID, Name: name, Participants: []chat.UserID{}, CreatedAt: time.Now().UTC()}
		return putRoom(txn, room)
	})
	return room, err
}

// AddParticipant creates the room on the fly, named after its id.
func (r ChatRepository) AddParticipant(_ context.Context, roomID chat.RoomID, userID chat.UserID) error {
	return r.update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if goerrors.Is(err, errors.ErrRoomNotFound) {
			room = chat.Room{ID: roomID, Name: defaultRoomName(roomID), CreatedAt: time.Now().UTC()}
		} else if err != nil {
			return err
		}
		if room.HasParticipant(userID) {
			return nil
		}
		room.Participants = append(room.Participants, userID)
		return putRoom(txn, room)
	})
}

// RemoveParticipant is a no-op for unknown rooms or users.
func (r ChatRepository) RemoveParticipant(_ context.Context, roomID chat.RoomID, userID chat.UserID) error {
	return r.update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if goerrors.Is(err, errors.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !room.HasParticipant(userID) {
			return nil
		}
		room.Participants = lo.Without(room.Participants, userID)
		return putRoom(txn, room)
	})
}

func (r ChatRepository) ListRooms(_ context.Context) ([]chat.Room, error) {
	rooms := make([]chat.Room, 0)
	prefix := []byte(roomPrefix)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				room, err := decodeRoom(value)
				if err != nil {
					return err
				}
				rooms = append(rooms, room)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rooms, func(a, b chat.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rooms, nil
}

// update retries fn when a concurrent transaction touched the same keys.
func (r ChatRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = r.db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func getRoom(txn *badger.Txn, roomID chat.RoomID) (chat.Room, error) {
	item, err := txn.Get(roomKey(roomID))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return chat.Room{}, err
	}
	var room chat.Room
	err = item.Value(func(value []byte) error {
		room, err = decodeRoom(value)
		return err
	})
	return room, err
}

func putRoom(txn *badger.Txn, room chat.Room) error {
	bytes, err := encodeRoom(room)
	if err != nil {
		return err
	}
	return txn.Set(roomKey(room.ID), bytes)
}

func defaultRoomName(roomID chat.RoomID) string {
	return fmt.Sprintf("Room %s", roomID)
}
