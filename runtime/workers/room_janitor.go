package workers

import (
	"chat-gateway/contract"
	"context"
	"log/slog"
	"time"
)

const DefaultJanitorInterval = 30 * time.Second

// SessionIndex tells whether a connection is still owned by a live session.
type SessionIndex interface {
	Has(connID string) bool
}

// RoomJanitorWorker sweeps the registry for connections that no live session
// owns anymore. Sessions always deregister themselves, so anything found here
// is a phantom member: it is removed and its handle closed.
type RoomJanitorWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	sessions SessionIndex
	interval time.Duration
}

func NewRoomJanitorWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	sessions SessionIndex,
	interval time.Duration,
) *RoomJanitorWorker {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &RoomJanitorWorker{log: log, registry: registry, sessions: sessions, interval: interval}
}

func (w *RoomJanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if swept := w.Sweep(); swept > 0 {
				w.log.Warn("Phantom connections removed", "count", swept)
			}
		}
	}
}

// Sweep returns the number of connections removed.
func (w *RoomJanitorWorker) Sweep() int {
	swept := 0
	for _, roomID := range w.registry.Rooms() {
		for userID, conn := range w.registry.ConnectionsOf(roomID) {
			if w.sessions.Has(conn.ID()) {
				continue
			}
			if !w.registry.DeregisterConnection(conn, roomID, userID) {
				continue
			}
			if err := conn.Close(); err != nil {
				w.log.Debug("Phantom close failed", "conn_id", conn.ID(), "error", err)
			}
			w.log.Info("Phantom member removed", "room_id", roomID, "user_id", userID, "conn_id", conn.ID())
			swept++
		}
	}
	return swept
}
