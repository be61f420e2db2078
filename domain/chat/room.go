// Package chat contains the core concepts of the chat gateway: rooms, users,
// messages and the envelopes exchanged over a live connection.
// No runtime, network, or storage logic should be added here.
package chat

import "time"

type RoomID string

type UserID string

const (
	DefaultRoomID   RoomID = "general"
	DefaultRoomName        = "General Chat"
)

// Room is the durable view of a chat room. Participants is the persisted
// participant list, not the set of live connections.
type Room struct {
	ID           RoomID    `json:"id"`
	Name         string    `json:"name"`
	Participants []UserID  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is in the persisted participant list.
func (r Room) HasParticipant(userID UserID) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
