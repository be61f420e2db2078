// Package ws accepts WebSocket connections and hands them to the session manager.
package ws

import (
	"chat-gateway/auth"
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/runtime"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// RoomPathValue is the path wildcard holding the room ID, as in "/ws/{room_id}".
const RoomPathValue = "room_id"

// roomIDRules keeps room IDs usable as storage key segments.
const roomIDRules = "required,max=128,excludesall=:/"

type HandlerConfig struct {
	Conn           ConnConfig
	AllowedOrigins []string
}

// Handler runs the handshake: room ID validation, token verification, then
// upgrade. A rejected handshake answers with a plain HTTP error and leaves no
// trace in the registry.
type Handler struct {
	ctx           context.Context
	log           *slog.Logger
	authenticator contract.Authenticator
	manager       *runtime.SessionManager
	upgrader      websocket.Upgrader
	config        HandlerConfig
	validate      *validator.Validate
}

// NewHandler serves every session under ctx, the gateway lifetime, rather than
// under the request context.
func NewHandler(
	ctx context.Context,
	log *slog.Logger,
	authenticator contract.Authenticator,
	manager *runtime.SessionManager,
	config HandlerConfig,
) *Handler {
	origins := NewOriginPolicy(config.AllowedOrigins, log)
	return &Handler{
		ctx:           ctx,
		log:           log,
		authenticator: authenticator,
		manager:       manager,
		config:        config,
		validate:      validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := chat.RoomID(r.PathValue(RoomPathValue))
	if err := h.validate.Var(string(roomID), roomIDRules); err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	if !h.manager.Accepting() {
		http.Error(w, errors.ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	userID, err := h.authenticator.Verify(auth.TokenFromRequest(r))
	if err != nil {
		h.log.Info("Handshake rejected", "room_id", roomID, "remote", r.RemoteAddr, "error", err)
		http.Error(w, errors.ErrHandshakeRejected.Error(), http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client.
		h.log.Info("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(socket, h.config.Conn)

	session, err := h.manager.Open(conn, roomID, userID)
	if err != nil {
		h.log.Info("Session refused", "room_id", roomID, "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}
	if err := h.manager.Serve(h.ctx, session); err != nil {
		h.log.Error("Session failed", "conn_id", conn.ID(), "room_id", roomID, "user_id", userID, "error", err)
	}
}
