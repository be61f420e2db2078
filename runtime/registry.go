package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"slices"
	"sync"
)

type Set[T comparable] map[T]struct{}

// Registry is the single source of truth for "who is connected where".
// It keeps two indices that are always updated together under one lock:
//   - rooms: room -> user -> live connection
//   - users: user -> set of rooms the user holds a live connection in
//
// The registry references connections, it never owns them: it does not send
// frames and never closes a handle.
type Registry struct {
	mu    sync.RWMutex
	rooms map[chat.RoomID]map[chat.UserID]contract.Connection
	users map[chat.UserID]Set[chat.RoomID]
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[chat.RoomID]map[chat.UserID]contract.Connection),
		users: make(map[chat.UserID]Set[chat.RoomID]),
	}
}

// Register adds conn under roomID for userID, initializing the room on the fly.
// The (room, user) pair is the idempotency key: registering it again replaces the
// previous handle, which is returned (nil if none) so the caller can decide to close it.
func (r *Registry) Register(conn contract.Connection, roomID chat.RoomID, userID chat.UserID) contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[chat.UserID]contract.Connection)
		r.rooms[roomID] = members
	}
	previous := members[userID]
	members[userID] = conn

	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(Set[chat.RoomID])
	}
	r.users[userID][roomID] = struct{}{}

	return previous
}

// Deregister removes a single membership when roomID is given, or every membership
// of the user otherwise. Unknown memberships are ignored so cleanup can run twice.
// It returns the rooms the user was actually removed from.
func (r *Registry) Deregister(userID chat.UserID, roomID *chat.RoomID) []chat.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID != nil {
		if r.remove(*roomID, userID) {
			return []chat.RoomID{*roomID}
		}
		return nil
	}

	var removed []chat.RoomID
	for room := range r.users[userID] {
		if r.remove(room, userID) {
			removed = append(removed, room)
		}
	}
	slices.Sort(removed)
	return removed
}

// DeregisterConnection removes the (room, user) pair only while it still points to conn.
// A session that has been superseded by a reconnect must not evict its replacement.
func (r *Registry) DeregisterConnection(conn contract.Connection, roomID chat.RoomID, userID chat.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[roomID][userID]
	if !ok || current != conn {
		return false
	}
	return r.remove(roomID, userID)
}

// remove must be called with the write lock held.
// No empty set is left behind in either index.
func (r *Registry) remove(roomID chat.RoomID, userID chat.UserID) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if rooms, ok := r.users[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.users, userID)
		}
	}
	return true
}

// MembersOf returns a sorted snapshot of the users connected to a room.
// An unknown room yields an empty slice.
func (r *Registry) MembersOf(roomID chat.RoomID) []chat.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]chat.UserID, 0, len(r.rooms[roomID]))
	for userID := range r.rooms[roomID] {
		members = append(members, userID)
	}
	slices.Sort(members)
	return members
}

// RoomsOf returns a sorted snapshot of the rooms a user is connected to.
func (r *Registry) RoomsOf(userID chat.UserID) []chat.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]chat.RoomID, 0, len(r.users[userID]))
	for roomID := range r.users[userID] {
		rooms = append(rooms, roomID)
	}
	slices.Sort(rooms)
	return rooms
}

func (r *Registry) ConnectionFor(roomID chat.RoomID, userID chat.UserID) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.rooms[roomID][userID]
	return conn, ok
}

// ConnectionsOf returns a point-in-time copy of a room's connections.
// Callers may iterate it freely while other sessions connect or disconnect.
func (r *Registry) ConnectionsOf(roomID chat.RoomID) map[chat.UserID]contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[chat.UserID]contract.Connection, len(r.rooms[roomID]))
	for userID, conn := range r.rooms[roomID] {
		snapshot[userID] = conn
	}
	return snapshot
}

// ConnectionsOfUser returns a point-in-time copy of every connection the user
// holds, keyed by room.
func (r *Registry) ConnectionsOfUser(userID chat.UserID) map[chat.RoomID]contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[chat.RoomID]contract.Connection, len(r.users[userID]))
	for roomID := range r.users[userID] {
		snapshot[roomID] = r.rooms[roomID][userID]
	}
	return snapshot
}

// Rooms lists the rooms that currently hold at least one live connection.
func (r *Registry) Rooms() []chat.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]chat.RoomID, 0, len(r.rooms))
	for roomID := range r.rooms {
		rooms = append(rooms, roomID)
	}
	slices.Sort(rooms)
	return rooms
}

// Count is the number of live (room, user) connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, members := range r.rooms {
		count += len(members)
	}
	return count
}
