package chat

import (
	"chat-gateway/errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		expected  Inbound
		malformed bool
	}{
		{name: "message envelope", raw: `{"type":"message","content":"hi"}`, expected: Inbound{Type: TypeMessage, Content: "hi"}},
		{name: "unknown type is still well formed", raw: `{"type":"typing"}`, expected: Inbound{Type: "typing"}},
		{name: "not json", raw: `hello`, malformed: true},
		{name: "json array", raw: `["message"]`, malformed: true},
		{name: "missing type", raw: `{"content":"hi"}`, malformed: true},
		{name: "type is not a string", raw: `{"type":1}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			in, err := DecodeInbound([]byte(tt.raw))
			if tt.malformed {
				req.ErrorIs(err, errors.ErrMalformedFrame)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, in)
		})
	}
}

func TestEncode_UserLeft_NeverEmitsNullParticipants(t *testing.T) {
	req := require.New(t)

	// Given the last member left the room
	raw, err := Encode(NewUserLeft("bob", "general", nil))
	req.NoError(err)

	// Then participants is an empty list on the wire
	var decoded map[string]any
	req.NoError(json.Unmarshal(raw, &decoded))
	req.Equal("user_left", decoded["type"])
	req.Equal("bob", decoded["user_id"])
	req.Equal("general", decoded["room_id"])
	req.Equal([]any{}, decoded["participants"])
}

func TestEncode_MessageSent_CarriesSender(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("general", "alice", "hi")

	raw, err := Encode(NewMessageSent(msg))
	req.NoError(err)

	var decoded struct {
		Type     string  `json:"type"`
		SenderID string  `json:"sender_id"`
		Message  Message `json:"message"`
	}
	req.NoError(json.Unmarshal(raw, &decoded))
	req.Equal("message", decoded.Type)
	req.Equal("alice", decoded.SenderID)
	req.Equal(msg.ID, decoded.Message.ID)
	req.Equal("hi", decoded.Message.Content)
}
