package repositories

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newBadgerRepository(t *testing.T) ChatRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewChatRepository(db, slog.Default())
}

func messageAt(roomID chat.RoomID, sender chat.UserID, content string, at time.Time) chat.Message {
	return chat.Message{ID: uuid.New(), RoomID: roomID, SenderID: sender, Content: content, Timestamp: at}
}

func Test_Record_Multiple_Message_Most_Recent_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	at := time.Now().UTC()
	alice := messageAt("general", "Alice", "first", at)
	bob := messageAt("general", "Bob", "second", at.Add(time.Minute))
	clara := messageAt("general", "Clara", "third", at.Add(2*time.Minute))
	for _, m := range []chat.Message{bob, clara, alice} {
		req.NoError(repository.SaveMessage(ctx, m))
	}

	fetched, err := repository.GetMessages(ctx, "general", 100)
	req.NoError(err)
	req.Equal([]chat.Message{clara, bob, alice}, fetched)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	at := time.Now().UTC()
	for i := range 5 {
		req.NoError(repository.SaveMessage(ctx, messageAt("general", "Alice", fmt.Sprint(i), at.Add(time.Duration(i)*time.Second))))
	}

	fetched, err := repository.GetMessages(ctx, "general", 2)
	req.NoError(err)
	req.Len(fetched, 2)
	req.Equal("4", fetched[0].Content)
	req.Equal("3", fetched[1].Content)
}

func Test_Messages_Are_Scoped_To_Their_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	at := time.Now().UTC()
	req.NoError(repository.SaveMessage(ctx, messageAt("r1", "Alice", "in r1", at)))
	req.NoError(repository.SaveMessage(ctx, messageAt("r10", "Alice", "in r10", at)))

	fetched, err := repository.GetMessages(ctx, "r1", 10)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("in r1", fetched[0].Content)

	empty, err := repository.GetMessages(ctx, "unknown", 10)
	req.NoError(err)
	req.NotNil(empty)
	req.Empty(empty)
}

func Test_Same_Nanosecond_Messages_Are_Both_Kept(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	at := time.Now().UTC()
	req.NoError(repository.SaveMessage(ctx, messageAt("general", "Alice", "a", at)))
	req.NoError(repository.SaveMessage(ctx, messageAt("general", "Bob", "b", at)))

	fetched, err := repository.GetMessages(ctx, "general", 10)
	req.NoError(err)
	req.Len(fetched, 2)
}

func Test_GetRoom_Unknown(t *testing.T) {
	req := require.New(t)
	repository := newBadgerRepository(t)

	_, err := repository.GetRoom(context.Background(), "nowhere")

	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func Test_EnsureRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	created, err := repository.EnsureRoom(ctx, chat.DefaultRoomID, chat.DefaultRoomName)
	req.NoError(err)
	req.NoError(repository.AddParticipant(ctx, chat.DefaultRoomID, "alice"))

	// When the room is ensured again under another name
	again, err := repository.EnsureRoom(ctx, chat.DefaultRoomID, "Renamed")
	req.NoError(err)

	// Then the stored room is kept as is
	req.Equal(created.ID, again.ID)
	req.Equal(chat.DefaultRoomName, again.Name)
	req.Equal([]chat.UserID{"alice"}, again.Participants)
}

func Test_AddParticipant_Creates_Unknown_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	req.NoError(repository.AddParticipant(ctx, "42", "alice"))
	req.NoError(repository.AddParticipant(ctx, "42", "alice"))
	req.NoError(repository.AddParticipant(ctx, "42", "bob"))

	room, err := repository.GetRoom(ctx, "42")
	req.NoError(err)
	req.Equal("Room 42", room.Name)
	req.Equal([]chat.UserID{"alice", "bob"}, room.Participants)

	req.NoError(repository.RemoveParticipant(ctx, "42", "alice"))
	req.NoError(repository.RemoveParticipant(ctx, "42", "alice"))
	req.NoError(repository.RemoveParticipant(ctx, "unknown", "alice"))

	room, err = repository.GetRoom(ctx, "42")
	req.NoError(err)
	req.Equal([]chat.UserID{"bob"}, room.Participants)
}

func Test_AddParticipant_Concurrently(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)
	_, err := repository.EnsureRoom(ctx, "busy", "Busy")
	req.NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repository.AddParticipant(ctx, "busy", chat.UserID(fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err != nil {
			req.ErrorIs(err, badger.ErrConflict)
			failures++
		}
	}
	room, err := repository.GetRoom(ctx, "busy")
	req.NoError(err)
	req.Len(room.Participants, 10-failures)
}

func Test_CreateRoom_And_ListRooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newBadgerRepository(t)

	general, err := repository.EnsureRoom(ctx, chat.DefaultRoomID, chat.DefaultRoomName)
	req.NoError(err)
	time.Sleep(time.Millisecond)
	created, err := repository.CreateRoom(ctx, "Random")
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Empty(created.Participants)

	rooms, err := repository.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 2)
	req.Equal(general.ID, rooms[0].ID)
	req.Equal("Random", rooms[1].Name)
}

func Test_DescribeRecord(t *testing.T) {
	req := require.New(t)

	value, err := encodeMessage(messageAt("general", "alice", "hello", time.Now()))
	req.NoError(err)
	kind, detail := DescribeRecord("msg:general:0000000000000000001:x", value)
	req.Equal("MESSAGE", kind)
	req.Equal("alice: hello", detail)

	kind, detail = DescribeRecord("room:general", []byte("garbage"))
	req.Equal("ROOM", kind)
	req.Contains(detail, "Error")
}
