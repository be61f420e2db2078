package runtime

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeConnection is an in-memory transport handle.
// Frames pushed with deliver are returned by Receive in order; hangUp makes
// Receive fail the way a peer close does.
type fakeConnection struct {
	id       string
	inbound  chan []byte
	hungUp   chan struct{}
	hangOnce sync.Once
	sendErr  error
	sendWait time.Duration

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	notify chan struct{}
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		id:      uuid.NewString(),
		inbound: make(chan []byte, 16),
		hungUp:  make(chan struct{}),
		notify:  make(chan struct{}, 64),
	}
}

func (f *fakeConnection) ID() string { return f.id }

func (f *fakeConnection) Send(ctx context.Context, payload []byte) error {
	if f.sendWait > 0 {
		select {
		case <-time.After(f.sendWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.ErrTransportClosed
	}
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeConnection) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.hungUp:
		return nil, errors.ErrTransportClosed
	case frame := <-f.inbound:
		return frame, nil
	}
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.hangUp()
	return nil
}

func (f *fakeConnection) deliver(frame string) { f.inbound <- []byte(frame) }

func (f *fakeConnection) hangUp() { f.hangOnce.Do(func() { close(f.hungUp) }) }

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// frames decodes every frame sent so far into generic envelopes.
func (f *fakeConnection) frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// framesOfType keeps only the envelopes whose type matches.
func (f *fakeConnection) framesOfType(t chat.EnvelopeType) []map[string]any {
	var out []map[string]any
	for _, m := range f.frames() {
		if m["type"] == string(t) {
			out = append(out, m)
		}
	}
	return out
}

// waitForType blocks until at least n envelopes of type t were sent.
func (f *fakeConnection) waitForType(t chat.EnvelopeType, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(f.framesOfType(t)) >= n {
			return true
		}
		select {
		case <-f.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			return false
		}
	}
}
