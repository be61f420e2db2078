package ws

import (
	"chat-gateway/errors"
	"context"
	goerrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultWriteWait    = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultMaxFrameSize = 64 * 1024
)

type ConnConfig struct {
	WriteWait    time.Duration
	PongWait     time.Duration
	MaxFrameSize int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	return c
}

// Conn adapts a gorilla connection to contract.Connection.
//
// gorilla allows one concurrent reader and one concurrent writer: the owning
// session is the only reader, Send serialises writers. A keepalive goroutine
// pings the peer and the pong handler pushes the read deadline forward, so a
// silent peer ends the session after PongWait.
type Conn struct {
	id     string
	ws     *websocket.Conn
	config ConnConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func NewConn(ws *websocket.Conn, config ConnConfig) *Conn {
	config = config.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		config: config,
		done:   make(chan struct{}),
	}
	ws.SetReadLimit(config.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(config.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(config.PongWait))
	})
	go c.keepalive()
	return c
}

func (c *Conn) ID() string { return c.id }

// Send writes one text frame, bounded by WriteWait or the ctx deadline, whichever comes first.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.config.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransportClosed, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", errors.ErrTransportClosed, err)
	}
	return nil
}

// Receive returns the next data frame. Every read error is terminal for a
// gorilla connection and is reported as ErrTransportClosed, except a
// cancellation, reported as the ctx error.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if goerrors.Is(err, websocket.ErrReadLimit) {
			return nil, fmt.Errorf("%w: frame larger than %d bytes", errors.ErrTransportClosed, c.config.MaxFrameSize)
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrTransportClosed, err)
	}
	return payload, nil
}

// Close sends a normal closure frame then closes the socket. Safe to call twice.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(c.config.WriteWait))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.config.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait)); err != nil {
				return
			}
		}
	}
}
