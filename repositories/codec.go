package repositories

import (
	"chat-gateway/domain/chat"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Badger values are protobuf encoded structpb records. Timestamps are kept as
// RFC3339Nano strings: a structpb number is a float64 and would lose the
// nanoseconds of a UnixNano value.

func encodeMessage(message chat.Message) ([]byte, error) {
	record, err := structpb.NewStruct(map[string]any{
		"id":        message.ID.String(),
		"room_id":   string(message.RoomID),
		"sender":    string(message.SenderID),
		"content":   message.Content,
		"timestamp": message.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(record)
}

func decodeMessage(value []byte) (chat.Message, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(value, &record); err != nil {
		return chat.Message{}, err
	}
	fields := record.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return chat.Message{}, fmt.Errorf("message id: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return chat.Message{}, fmt.Errorf("message timestamp: %w", err)
	}
	return chat.Message{
		ID:        id,
		RoomID:    chat.RoomID(fields["room_id"].GetStringValue()),
		SenderID:  chat.UserID(fields["sender"].GetStringValue()),
		Content:   fields["content"].GetStringValue(),
		Timestamp: at.UTC(),
	}, nil
}

func encodeRoom(room chat.Room) ([]byte, error) {
	participants := lo.Map(room.Participants, func(p chat.UserID, _ int) any { return string(p) })
	record, err := structpb.NewStruct(map[string]any{
		"id":           string(room.ID),
		"name":         room.Name,
		"participants": participants,
		"created_at":   room.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(record)
}

func decodeRoom(value []byte) (chat.Room, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(value, &record); err != nil {
		return chat.Room{}, err
	}
	fields := record.GetFields()
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"].GetStringValue())
	if err != nil {
		return chat.Room{}, fmt.Errorf("room created_at: %w", err)
	}
	participants := lo.Map(fields["participants"].GetListValue().GetValues(), func(v *structpb.Value, _ int) chat.UserID {
		return chat.UserID(v.GetStringValue())
	})
	return chat.Room{
		ID:           chat.RoomID(fields["id"].GetStringValue()),
		Name:         fields["name"].GetStringValue(),
		Participants: participants,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

// DescribeRecord renders a stored value for the inspectors.
func DescribeRecord(key string, value []byte) (kind string, detail string) {
	switch {
	case strings.HasPrefix(key, roomPrefix):
		room, err := decodeRoom(value)
		if err != nil {
			return "ROOM", "Error: unmarshal failed"
		}
		return "ROOM", fmt.Sprintf("%s (%d participants)", room.Name, len(room.Participants))
	case strings.HasPrefix(key, messagePrefix):
		message, err := decodeMessage(value)
		if err != nil {
			return "MESSAGE", "Error: unmarshal failed"
		}
		return "MESSAGE", fmt.Sprintf("%s: %s", message.SenderID, message.Content)
	default:
		return "UNKNOWN", ""
	}
}
