//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-gateway/domain/chat"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is a live, bidirectional transport handle.
// It is owned by the session that accepted it; the registry only references it.
type Connection interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type IRegistry interface {
	Register(conn Connection, roomID chat.RoomID, userID chat.UserID) Connection
	Deregister(userID chat.UserID, roomID *chat.RoomID) []chat.RoomID
	DeregisterConnection(conn Connection, roomID chat.RoomID, userID chat.UserID) bool
	MembersOf(roomID chat.RoomID) []chat.UserID
	RoomsOf(userID chat.UserID) []chat.RoomID
	ConnectionFor(roomID chat.RoomID, userID chat.UserID) (Connection, bool)
	ConnectionsOf(roomID chat.RoomID) map[chat.UserID]Connection
	ConnectionsOfUser(userID chat.UserID) map[chat.RoomID]Connection
	Rooms() []chat.RoomID
	Count() int
}

// DeliveryReport is the outcome of one fan-out. Failures are keyed by
// connection ID and reported here, never as an error to the caller.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failed    map[string]error
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, roomID chat.RoomID, payload []byte, exclude *chat.UserID) DeliveryReport
	SendToUser(ctx context.Context, userID chat.UserID, payload []byte) DeliveryReport
	Send(ctx context.Context, roomID chat.RoomID, userID chat.UserID, payload []byte) error
	SendTo(ctx context.Context, conn Connection, payload []byte) error
}

// IChatUseCase is what a live session needs from the chat domain:
// durable messages, room snapshots and durable participants.
type IChatUseCase interface {
	PersistMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	GetRoomSnapshot(ctx context.Context, roomID chat.RoomID) (*chat.Room, error)
	GetRecentMessages(ctx context.Context, roomID chat.RoomID, limit int) ([]chat.Message, error)
	AddParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error
	RemoveParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error
}

// IRoomQueries is the non-realtime surface exposed over HTTP.
type IRoomQueries interface {
	ListRooms(ctx context.Context) ([]chat.Room, error)
	CreateRoom(ctx context.Context, cmd chat.CreateRoomCommand) (chat.Room, error)
	GetMessages(ctx context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error)
}

// Authenticator resolves a bearer token into a user identifier.
type Authenticator interface {
	Verify(token string) (chat.UserID, error)
}
