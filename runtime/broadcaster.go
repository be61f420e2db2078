package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single delivery so one slow peer cannot stall a fan-out.
const DefaultSendTimeout = 5 * time.Second

// Broadcaster fans a payload out to the live connections of a room.
//
// Delivery is best effort: every target is attempted concurrently, each failure
// is recorded in the returned report and never surfaced as an error. The
// broadcaster does not deregister failing connections, the owning session does
// that when its own read or write path fails.
type Broadcaster struct {
	log         *slog.Logger
	registry    contract.IRegistry
	metrics     *observability.Metrics
	sendTimeout time.Duration
}

func NewBroadcaster(
	log *slog.Logger,
	registry contract.IRegistry,
	metrics *observability.Metrics,
	sendTimeout time.Duration,
) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Broadcaster{
		log:         log,
		registry:    registry,
		metrics:     metrics,
		sendTimeout: sendTimeout,
	}
}

type target struct {
	userID chat.UserID
	conn   contract.Connection
}

type outcome struct {
	connID string
	err    error
}

// Broadcast sends payload to every connection of roomID except the one held by exclude.
// Membership is snapshotted once, connections joining afterwards are not targeted.
func (b *Broadcaster) Broadcast(
	ctx context.Context,
	roomID chat.RoomID,
	payload []byte,
	exclude *chat.UserID,
) contract.DeliveryReport {
	var targets []target
	for userID, conn := range b.registry.ConnectionsOf(roomID) {
		if exclude != nil && userID == *exclude {
			continue
		}
		targets = append(targets, target{userID: userID, conn: conn})
	}

	report := b.deliver(ctx, targets, payload)
	if len(report.Failed) > 0 {
		b.log.Warn("Broadcast partially failed",
			"room", roomID,
			"attempted", report.Attempted,
			"failed", len(report.Failed))
	}
	return report
}

// SendToUser delivers payload to every connection the user holds, whatever the room.
func (b *Broadcaster) SendToUser(ctx context.Context, userID chat.UserID, payload []byte) contract.DeliveryReport {
	var targets []target
	for _, conn := range b.registry.ConnectionsOfUser(userID) {
		targets = append(targets, target{userID: userID, conn: conn})
	}
	return b.deliver(ctx, targets, payload)
}

// Send is the personal message path: one room, one user, error returned to the caller.
func (b *Broadcaster) Send(ctx context.Context, roomID chat.RoomID, userID chat.UserID, payload []byte) error {
	conn, ok := b.registry.ConnectionFor(roomID, userID)
	if !ok {
		return fmt.Errorf("%w: %s is not connected to %s", errors.ErrDeliveryFailure, userID, roomID)
	}
	return b.SendTo(ctx, conn, payload)
}

// SendTo writes to one known handle without consulting the registry, so a
// reply reaches the connection that asked even after a reconnect replaced it.
func (b *Broadcaster) SendTo(ctx context.Context, conn contract.Connection, payload []byte) error {
	if err := b.sendOne(ctx, conn, payload); err != nil {
		b.metrics.DeliveryFailures.Inc()
		return fmt.Errorf("%w: %v", errors.ErrDeliveryFailure, err)
	}
	b.metrics.Deliveries.Inc()
	return nil
}

func (b *Broadcaster) deliver(ctx context.Context, targets []target, payload []byte) contract.DeliveryReport {
	b.metrics.Broadcasts.Inc()
	report := contract.DeliveryReport{
		Attempted: len(targets),
		Failed:    make(map[string]error),
	}
	if len(targets) == 0 {
		return report
	}

	results := make(chan outcome, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			results <- outcome{connID: t.conn.ID(), err: b.sendOne(ctx, t.conn, payload)}
		}(t)
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			report.Failed[res.connID] = res.err
			b.metrics.DeliveryFailures.Inc()
			b.log.Debug("Delivery failed", "connection", res.connID, "error", res.err)
			continue
		}
		report.Delivered++
		b.metrics.Deliveries.Inc()
	}
	return report
}

// sendOne never lets a panicking transport escape into the fan-out.
func (b *Broadcaster) sendOne(ctx context.Context, conn contract.Connection, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during send: %v", errors.ErrDeliveryFailure, r)
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	return conn.Send(sendCtx, payload)
}
