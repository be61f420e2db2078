// Package rest serves the non-realtime HTTP surface of the gateway: health,
// metrics and the room/message queries.
package rest

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rs/cors"
)

// Readiness reports whether the gateway still accepts sessions.
type Readiness interface {
	Accepting() bool
}

type Dependencies struct {
	Log            *slog.Logger
	Queries        contract.IRoomQueries
	Registry       contract.IRegistry
	Readiness      Readiness
	Metrics        http.Handler
	WebSocket      http.Handler
	AllowedOrigins []string
}

type api struct {
	log       *slog.Logger
	queries   contract.IRoomQueries
	registry  contract.IRegistry
	readiness Readiness
}

// NewRouter wires every route and wraps the mux with CORS.
func NewRouter(deps Dependencies) http.Handler {
	a := &api{log: deps.Log, queries: deps.Queries, registry: deps.Registry, readiness: deps.Readiness}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /readyz", a.ready)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	if deps.WebSocket != nil {
		mux.Handle("GET /ws/{room_id}", deps.WebSocket)
		mux.Handle("GET /chat/ws/{room_id}", deps.WebSocket)
	}

	mux.HandleFunc("GET /chat/rooms", a.listRooms)
	mux.HandleFunc("POST /chat/rooms", a.createRoom)
	mux.HandleFunc("GET /chat/rooms/{room_id}/messages", a.getMessages)
	mux.HandleFunc("GET /chat/rooms/{room_id}/participants", a.getParticipants)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

func (a *api) ready(w http.ResponseWriter, _ *http.Request) {
	if !a.readiness.Accepting() {
		http.Error(w, errors.ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *api) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.queries.ListRooms(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, rooms)
}

// createRoom takes the name from a JSON body or, failing that, the "name" query parameter.
func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var cmd chat.CreateRoomCommand
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
	}
	if cmd.Name == "" {
		cmd.Name = r.URL.Query().Get("name")
	}
	room, err := a.queries.CreateRoom(r.Context(), cmd)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusCreated, room)
}

func (a *api) getMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	messages, err := a.queries.GetMessages(r.Context(), chat.GetMessagesCommand{
		RoomID: chat.RoomID(r.PathValue("room_id")),
		Limit:  limit,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusOK, messages)
}

type participantsResponse struct {
	RoomID       chat.RoomID   `json:"room_id"`
	Participants []chat.UserID `json:"participants"`
}

// getParticipants lists live members, not the durable participant list.
func (a *api) getParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := chat.RoomID(r.PathValue("room_id"))
	a.reply(w, http.StatusOK, participantsResponse{RoomID: roomID, Participants: a.registry.MembersOf(roomID)})
}

func (a *api) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Debug("Response not written", "error", err)
	}
}

func (a *api) fail(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("Query failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
