package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event once persisted.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	SenderID  UserID    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a fresh identifier and a UTC timestamp.
func NewMessage(roomID RoomID, senderID UserID, content string) Message {
	return Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
