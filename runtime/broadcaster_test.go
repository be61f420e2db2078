package runtime

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/observability"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(registry *Registry, timeout time.Duration) (*Broadcaster, *observability.Metrics) {
	metrics := observability.NewMetrics()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewBroadcaster(log, registry, metrics, timeout), metrics
}

func TestBroadcaster_Broadcast_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)

	// Given three members of the same room
	alice, bob, carol := newFakeConnection(), newFakeConnection(), newFakeConnection()
	registry.Register(alice, "r1", "alice")
	registry.Register(bob, "r1", "bob")
	registry.Register(carol, "r1", "carol")

	// When alice broadcasts excluding herself
	exclude := chat.UserID("alice")
	report := broadcaster.Broadcast(ctx, "r1", []byte(`{"type":"message"}`), &exclude)

	// Then the two others receive it exactly once
	req.Equal(2, report.Attempted)
	req.Equal(2, report.Delivered)
	req.Empty(report.Failed)
	req.Len(bob.frames(), 1)
	req.Len(carol.frames(), 1)
	req.Empty(alice.frames())
}

func TestBroadcaster_Broadcast_Whole_Room_Without_Exclusion(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster, metrics := newTestBroadcaster(registry, time.Second)

	conns := make([]*fakeConnection, 5)
	for i := range conns {
		conns[i] = newFakeConnection()
		registry.Register(conns[i], "r1", chat.UserID(fmt.Sprintf("user-%d", i)))
	}
	// Given a member of another room
	outsider := newFakeConnection()
	registry.Register(outsider, "r2", "outsider")

	report := broadcaster.Broadcast(context.Background(), "r1", []byte(`{}`), nil)

	req.Equal(5, report.Delivered)
	for _, c := range conns {
		req.Len(c.frames(), 1)
	}
	req.Empty(outsider.frames())
	req.Equal(5.0, testutil.ToFloat64(metrics.Deliveries))
}

func TestBroadcaster_Broadcast_Failure_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster, metrics := newTestBroadcaster(registry, time.Second)

	// Given a member whose transport is broken
	broken := newFakeConnection()
	broken.sendErr = errors.ErrTransportClosed
	healthy := newFakeConnection()
	registry.Register(broken, "r1", "broken")
	registry.Register(healthy, "r1", "healthy")

	report := broadcaster.Broadcast(context.Background(), "r1", []byte(`{}`), nil)

	// Then the failure is reported, not raised, and the healthy peer still got the frame
	req.Equal(2, report.Attempted)
	req.Equal(1, report.Delivered)
	req.ErrorIs(report.Failed[broken.ID()], errors.ErrTransportClosed)
	req.Len(healthy.frames(), 1)
	req.Equal(1.0, testutil.ToFloat64(metrics.DeliveryFailures))

	// And the broken connection is still registered: cleanup belongs to its session
	_, ok := registry.ConnectionFor("r1", "broken")
	req.True(ok)
}

func TestBroadcaster_Broadcast_Slow_Peer_Is_Bounded(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster, _ := newTestBroadcaster(registry, 50*time.Millisecond)

	// Given a peer that never drains its socket
	slow := newFakeConnection()
	slow.sendWait = time.Hour
	fast := newFakeConnection()
	registry.Register(slow, "r1", "slow")
	registry.Register(fast, "r1", "fast")

	start := time.Now()
	report := broadcaster.Broadcast(context.Background(), "r1", []byte(`{}`), nil)

	req.Less(time.Since(start), time.Second)
	req.Equal(1, report.Delivered)
	req.ErrorIs(report.Failed[slow.ID()], context.DeadlineExceeded)
	req.Len(fast.frames(), 1)
}

func TestBroadcaster_Broadcast_Unknown_Room(t *testing.T) {
	req := require.New(t)
	broadcaster, _ := newTestBroadcaster(NewRegistry(), time.Second)

	report := broadcaster.Broadcast(context.Background(), "nowhere", []byte(`{}`), nil)

	req.Zero(report.Attempted)
	req.Zero(report.Delivered)
	req.Empty(report.Failed)
}

func TestBroadcaster_SendToUser_Reaches_Every_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)

	inR1, inR2 := newFakeConnection(), newFakeConnection()
	registry.Register(inR1, "r1", "u1")
	registry.Register(inR2, "r2", "u1")
	other := newFakeConnection()
	registry.Register(other, "r1", "u2")

	report := broadcaster.SendToUser(context.Background(), "u1", []byte(`{}`))

	req.Equal(2, report.Delivered)
	req.Len(inR1.frames(), 1)
	req.Len(inR2.frames(), 1)
	req.Empty(other.frames())
}

func TestBroadcaster_Send_Not_Connected(t *testing.T) {
	req := require.New(t)
	broadcaster, _ := newTestBroadcaster(NewRegistry(), time.Second)

	err := broadcaster.Send(context.Background(), "r1", "ghost", []byte(`{}`))

	req.ErrorIs(err, errors.ErrDeliveryFailure)
}

func TestBroadcaster_Send_Wraps_Transport_Error(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)

	conn := newFakeConnection()
	req.NoError(conn.Close())
	registry.Register(conn, "r1", "u1")

	err := broadcaster.Send(context.Background(), "r1", "u1", []byte(`{}`))

	req.ErrorIs(err, errors.ErrDeliveryFailure)
}
