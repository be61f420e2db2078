package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/observability"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

const (
	DefaultHistoryLimit     = 100
	DefaultMaxContentLength = 4096
)

// SessionConfig holds the per-session knobs shared by every session of a manager.
// A zero RateLimit disables inbound rate limiting.
type SessionConfig struct {
	HistoryLimit     int
	MaxContentLength int
	RateLimit        float64
	RateBurst        int
}

// SessionManager creates sessions and keeps track of the live ones, so that a
// process shutdown can drive each of them to CLOSED.
type SessionManager struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	useCase     contract.IChatUseCase
	metrics     *observability.Metrics
	config      SessionConfig
	validate    *validator.Validate

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewSessionManager(
	log *slog.Logger,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	useCase contract.IChatUseCase,
	metrics *observability.Metrics,
	config SessionConfig,
) *SessionManager {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.MaxContentLength <= 0 {
		config.MaxContentLength = DefaultMaxContentLength
	}
	return &SessionManager{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		useCase:     useCase,
		metrics:     metrics,
		config:      config,
		validate:    validator.New(),
		sessions:    make(map[string]*Session),
	}
}

// Open creates a CONNECTING session for an accepted and authenticated connection.
// Every opened session must then be handed to Serve.
func (m *SessionManager) Open(conn contract.Connection, roomID chat.RoomID, userID chat.UserID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.ErrShuttingDown
	}

	limit, burst := rate.Inf, 0
	if m.config.RateLimit > 0 {
		limit = rate.Limit(m.config.RateLimit)
		burst = max(m.config.RateBurst, 1)
	}

	session := &Session{
		conn:         conn,
		roomID:       roomID,
		userID:       userID,
		registry:     m.registry,
		broadcaster:  m.broadcaster,
		useCase:      m.useCase,
		log:          m.log,
		metrics:      m.metrics,
		validate:     m.validate,
		limiter:      rate.NewLimiter(limit, burst),
		config:       m.config,
		done:         make(chan struct{}),
		contentRules: fmt.Sprintf("required,max=%d", m.config.MaxContentLength),
	}
	m.sessions[conn.ID()] = session
	m.wg.Add(1)
	m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return session, nil
}

// Serve runs the session to completion and forgets it.
func (m *SessionManager) Serve(ctx context.Context, session *Session) error {
	defer m.wg.Done()
	defer m.forget(session)
	return session.Run(ctx)
}

func (m *SessionManager) forget(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session.ID())
	m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
}

// Shutdown stops accepting sessions, then closes the live ones one at a time,
// waiting for each to reach CLOSED before the next, so every peer still open
// is told about each departure. It gives up when ctx expires.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()
	slices.SortFunc(live, func(a, b *Session) int { return cmp.Compare(a.ID(), b.ID()) })

	m.log.Info("Closing live sessions", "count", len(live))
	for _, s := range live {
		s.Close()
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("sessions still running after shutdown timeout: %w", ctx.Err())
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still running after shutdown timeout: %w", ctx.Err())
	}
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Has reports whether a session still owns the connection with this ID.
func (m *SessionManager) Has(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[connID]
	return ok
}

// Accepting is false once Shutdown has been called.
func (m *SessionManager) Accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}
