package chat

import (
	"chat-gateway/errors"
	"encoding/json"
	"fmt"
	"time"
)

type EnvelopeType string

const (
	TypeMessage    EnvelopeType = "message"
	TypePing       EnvelopeType = "ping"
	TypePong       EnvelopeType = "pong"
	TypeRoomInfo   EnvelopeType = "room_info"
	TypeUserJoined EnvelopeType = "user_joined"
	TypeUserLeft   EnvelopeType = "user_left"
)

// Inbound is a frame sent by a client. Only Type is mandatory; the other
// fields depend on it.
type Inbound struct {
	Type    EnvelopeType `json:"type"`
	Content string       `json:"content"`
}

// DecodeInbound parses a raw text frame. Anything that is not a JSON object
// carrying a string "type" is reported as ErrMalformedFrame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", errors.ErrMalformedFrame)
	}
	return in, nil
}

type RoomInfo struct {
	Type         EnvelopeType `json:"type"`
	Room         *Room        `json:"room"`
	Participants []UserID     `json:"participants"`
	Messages     []Message    `json:"messages"`
}

type UserJoined struct {
	Type         EnvelopeType `json:"type"`
	UserID       UserID       `json:"user_id"`
	RoomID       RoomID       `json:"room_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Participants []UserID     `json:"participants"`
}

type MessageSent struct {
	Type     EnvelopeType `json:"type"`
	Message  Message      `json:"message"`
	SenderID UserID       `json:"sender_id"`
}

type UserLeft struct {
	Type         EnvelopeType `json:"type"`
	UserID       UserID       `json:"user_id"`
	RoomID       RoomID       `json:"room_id"`
	Participants []UserID     `json:"participants"`
}

type Pong struct {
	Type      EnvelopeType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewRoomInfo(room *Room, participants []UserID, messages []Message) RoomInfo {
	return RoomInfo{Type: TypeRoomInfo, Room: room, Participants: nonNil(participants), Messages: nonNilMessages(messages)}
}

func NewUserJoined(userID UserID, roomID RoomID, participants []UserID) UserJoined {
	return UserJoined{
		Type:         TypeUserJoined,
		UserID:       userID,
		RoomID:       roomID,
		Timestamp:    time.Now().UTC(),
		Participants: nonNil(participants),
	}
}

func NewMessageSent(message Message) MessageSent {
	return MessageSent{Type: TypeMessage, Message: message, SenderID: message.SenderID}
}

func NewUserLeft(userID UserID, roomID RoomID, participants []UserID) UserLeft {
	return UserLeft{Type: TypeUserLeft, UserID: userID, RoomID: roomID, Participants: nonNil(participants)}
}

func NewPong() Pong {
	return Pong{Type: TypePong, Timestamp: time.Now().UTC()}
}

// Encode serialises an outbound envelope into a text frame.
func Encode(envelope any) ([]byte, error) {
	return json.Marshal(envelope)
}

// JSON lists must never be null on the wire.
func nonNil(ids []UserID) []UserID {
	if ids == nil {
		return []UserID{}
	}
	return ids
}

func nonNilMessages(messages []Message) []Message {
	if messages == nil {
		return []Message{}
	}
	return messages
}
