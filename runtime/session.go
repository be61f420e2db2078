package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/observability"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// cleanupTimeout bounds the CLOSING phase once the session context is gone.
const cleanupTimeout = 5 * time.Second

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session drives one accepted connection through
// CONNECTING -> ACTIVE -> CLOSING -> CLOSED.
//
// It owns the connection: it is the only one reading from it and the only one
// closing it. The CLOSING sequence (deregister, user_left, close) runs exactly
// once, whatever ended the session.
type Session struct {
	conn   contract.Connection
	roomID chat.RoomID
	userID chat.UserID

	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	useCase     contract.IChatUseCase
	log         *slog.Logger
	metrics     *observability.Metrics
	validate    *validator.Validate
	limiter     *rate.Limiter
	config      SessionConfig

	state        atomic.Int32
	mu           sync.Mutex
	cancel       context.CancelFunc
	closeAsked   bool
	cleanupOnce  sync.Once
	done         chan struct{}
	contentRules string
}

func (s *Session) ID() string { return s.conn.ID() }
func (s *Session) RoomID() chat.RoomID { return s.roomID }
func (s *Session) UserID() chat.UserID { return s.userID }
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// Close asks the session to terminate. It returns immediately; wait on Done
// to observe CLOSED.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAsked = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks until the session reached CLOSED.
// Peer hang-up and cancellation are normal terminations and return nil.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.closeAsked {
		cancel()
	}
	s.mu.Unlock()

	// Deferred first so that it runs last, after the panic has been recovered.
	defer s.cleanup(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Session panicked", "conn_id", s.ID(), "room_id", s.roomID, "user_id", s.userID, "panic", r)
			err = fmt.Errorf("%w: %v", errors.ErrSessionPanic, r)
		}
	}()

	if ctx.Err() != nil {
		return nil
	}
	if err := s.activate(ctx); err != nil {
		return s.terminal(ctx, err)
	}
	return s.terminal(ctx, s.readLoop(ctx))
}

// activate registers the connection, sends the room snapshot through its own
// handle and announces the newcomer to the rest of the room.
func (s *Session) activate(ctx context.Context) error {
	if previous := s.registry.Register(s.conn, s.roomID, s.userID); previous != nil {
		s.log.Info("Connection superseded by reconnect",
			"room_id", s.roomID, "user_id", s.userID, "previous", previous.ID(), "conn_id", s.ID())
	}
	s.state.Store(int32(StateActive))
	s.metrics.SessionsOpened.Inc()
	s.refreshGauges()

	if err := s.useCase.AddParticipant(ctx, s.roomID, s.userID); err != nil {
		s.log.Warn("Unable to record participant", "room_id", s.roomID, "user_id", s.userID, "error", err)
	}

	room, err := s.useCase.GetRoomSnapshot(ctx, s.roomID)
	if err != nil {
		s.log.Warn("Unable to load room snapshot", "room_id", s.roomID, "error", err)
	}
	history, err := s.useCase.GetRecentMessages(ctx, s.roomID, s.config.HistoryLimit)
	if err != nil {
		s.log.Warn("Unable to load room history", "room_id", s.roomID, "error", err)
	}
	members := s.registry.MembersOf(s.roomID)

	info, err := chat.Encode(chat.NewRoomInfo(room, members, history))
	if err != nil {
		return err
	}
	if err := s.broadcaster.SendTo(ctx, s.conn, info); err != nil {
		return err
	}

	joined, err := chat.Encode(chat.NewUserJoined(s.userID, s.roomID, members))
	if err != nil {
		return err
	}
	self := s.userID
	s.broadcaster.Broadcast(ctx, s.roomID, joined, &self)

	s.log.Info("Session active", "conn_id", s.ID(), "room_id", s.roomID, "user_id", s.userID)
	return nil
}

// readLoop processes inbound frames in arrival order until the transport fails
// or the context is cancelled. Errors on a single frame never end the loop.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		raw, err := s.conn.Receive(ctx)
		if err != nil {
			return err
		}
		s.handleFrame(ctx, raw)
	}
}

func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	if !s.limiter.Allow() {
		s.metrics.FramesReceived.WithLabelValues(observability.FrameRateLimited).Inc()
		s.log.Warn("Rate limit exceeded, frame dropped", "conn_id", s.ID(), "user_id", s.userID)
		return
	}

	in, err := chat.DecodeInbound(raw)
	if err != nil {
		s.metrics.FramesReceived.WithLabelValues(observability.FrameMalformed).Inc()
		s.log.Warn("Frame ignored", "conn_id", s.ID(), "error", err)
		return
	}

	switch in.Type {
	case chat.TypeMessage:
		if err := s.handleMessage(ctx, in); err != nil {
			s.log.Warn("Message not delivered", "conn_id", s.ID(), "room_id", s.roomID, "error", err)
		}
	case chat.TypePing:
		s.metrics.FramesReceived.WithLabelValues(observability.FramePing).Inc()
		pong, err := chat.Encode(chat.NewPong())
		if err != nil {
			return
		}
		if err := s.broadcaster.SendTo(ctx, s.conn, pong); err != nil {
			s.log.Debug("Pong not delivered", "conn_id", s.ID(), "error", err)
		}
	default:
		s.metrics.FramesReceived.WithLabelValues(observability.FrameIgnored).Inc()
		s.log.Debug("Unknown frame type ignored", "conn_id", s.ID(), "type", in.Type)
	}
}

// handleMessage persists before broadcasting, so everything a room sees is durable.
func (s *Session) handleMessage(ctx context.Context, in chat.Inbound) error {
	if err := s.validate.Var(in.Content, s.contentRules); err != nil {
		s.metrics.FramesReceived.WithLabelValues(observability.FrameMalformed).Inc()
		return fmt.Errorf("%w: %v", errors.ErrInvalidContent, err)
	}

	message, err := s.useCase.PersistMessage(ctx, chat.PostMessageCommand{
		RoomID:   s.roomID,
		SenderID: s.userID,
		Content:  in.Content,
	})
	if err != nil {
		s.metrics.FramesReceived.WithLabelValues(observability.FrameFailed).Inc()
		return err
	}
	s.metrics.FramesReceived.WithLabelValues(observability.FrameMessage).Inc()

	payload, err := chat.Encode(chat.NewMessageSent(message))
	if err != nil {
		return err
	}
	s.broadcaster.Broadcast(ctx, s.roomID, payload, nil)
	return nil
}

// terminal maps the reason the session stopped to the value returned by Run.
func (s *Session) terminal(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil, goerrors.Is(err, errors.ErrTransportClosed):
		s.log.Debug("Session ending", "conn_id", s.ID(), "reason", err)
		return nil
	default:
		return err
	}
}

// cleanup is the CLOSING phase. A session superseded by a reconnect only closes
// its own transport: the user is still present through the replacement.
func (s *Session) cleanup(ctx context.Context) {
	s.cleanupOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		if s.registry.DeregisterConnection(s.conn, s.roomID, s.userID) {
			if err := s.useCase.RemoveParticipant(cleanupCtx, s.roomID, s.userID); err != nil {
				s.log.Warn("Unable to remove participant", "room_id", s.roomID, "user_id", s.userID, "error", err)
			}
			if left, err := chat.Encode(chat.NewUserLeft(s.userID, s.roomID, s.registry.MembersOf(s.roomID))); err == nil {
				self := s.userID
				s.broadcaster.Broadcast(cleanupCtx, s.roomID, left, &self)
			}
		}

		if err := s.conn.Close(); err != nil {
			s.log.Debug("Transport close failed", "conn_id", s.ID(), "error", err)
		}
		s.state.Store(int32(StateClosed))
		s.metrics.SessionsClosed.Inc()
		s.refreshGauges()
		close(s.done)
		s.log.Info("Session closed", "conn_id", s.ID(), "room_id", s.roomID, "user_id", s.userID)
	})
}

func (s *Session) refreshGauges() {
	s.metrics.ActiveConnections.Set(float64(s.registry.Count()))
	s.metrics.LiveRooms.Set(float64(len(s.registry.Rooms())))
}
