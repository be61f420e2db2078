package repositories

import (
	"chat-gateway/domain/chat"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanRecords_Describes_Rooms_And_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newBadgerRepository(t)

	// Given one room holding one message
	_, err := repo.EnsureRoom(ctx, chat.DefaultRoomID, chat.DefaultRoomName)
	req.NoError(err)
	req.NoError(repo.AddParticipant(ctx, chat.DefaultRoomID, "alice"))
	req.NoError(repo.SaveMessage(ctx, messageAt(chat.DefaultRoomID, "alice", "hello", time.Now())))

	// When every record is scanned
	rows, err := ScanRecords(repo.db, "")

	// Then messages sort before rooms and both are labelled
	req.NoError(err)
	req.Len(rows, 2)
	req.Equal("MESSAGE", rows[0].Type)
	req.Equal("alice: hello", rows[0].Detail)
	req.Equal("ROOM", rows[1].Type)
	req.Equal("room:general", rows[1].Key)
	req.Equal("General Chat (1 participants)", rows[1].Detail)

	// And a prefix narrows the scan
	rooms, err := ScanRecords(repo.db, roomPrefix)
	req.NoError(err)
	req.Len(rooms, 1)
}

func TestDescribeRecord_Unknown_And_Corrupted(t *testing.T) {
	req := require.New(t)

	kind, detail := DescribeRecord("other:key", []byte("x"))
	req.Equal("UNKNOWN", kind)
	req.Empty(detail)

	kind, detail = DescribeRecord("room:broken", []byte{0xff, 0x01})
	req.Equal("ROOM", kind)
	req.Equal("Error: unmarshal failed", detail)
}
