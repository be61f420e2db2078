package rest

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/mocks"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type readiness bool

func (r readiness) Accepting() bool { return bool(r) }

type fixture struct {
	router   http.Handler
	queries  *mocks.MockIRoomQueries
	registry *mocks.MockIRegistry
}

func newFixture(t *testing.T, ready bool) fixture {
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockIRoomQueries(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	router := NewRouter(Dependencies{
		Log:            slog.Default(),
		Queries:        queries,
		Registry:       registry,
		Readiness:      readiness(ready),
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		AllowedOrigins: []string{"https://chat.example"},
	})
	return fixture{router: router, queries: queries, registry: registry}
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestRouter_Health_And_Readiness(t *testing.T) {
	req := require.New(t)

	up := newFixture(t, true)
	req.Equal(http.StatusOK, serve(up.router, httptest.NewRequest("GET", "/healthz", nil)).Code)
	req.Equal(http.StatusOK, serve(up.router, httptest.NewRequest("GET", "/readyz", nil)).Code)
	req.Equal("# metrics", serve(up.router, httptest.NewRequest("GET", "/metrics", nil)).Body.String())

	// Given a gateway shutting down
	down := newFixture(t, false)
	req.Equal(http.StatusOK, serve(down.router, httptest.NewRequest("GET", "/healthz", nil)).Code)
	req.Equal(http.StatusServiceUnavailable, serve(down.router, httptest.NewRequest("GET", "/readyz", nil)).Code)
}

func TestRouter_ListRooms(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.queries.EXPECT().ListRooms(gomock.Any()).Return([]chat.Room{
		{ID: chat.DefaultRoomID, Name: chat.DefaultRoomName, Participants: []chat.UserID{}},
	}, nil)

	rec := serve(f.router, httptest.NewRequest("GET", "/chat/rooms", nil))

	req.Equal(http.StatusOK, rec.Code)
	var rooms []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &rooms))
	req.Len(rooms, 1)
	req.Equal("general", rooms[0]["id"])
	req.Equal("General Chat", rooms[0]["name"])
}

func TestRouter_CreateRoom(t *testing.T) {
	tests := []struct {
		name    string
		request *http.Request
	}{
		{name: "json body", request: httptest.NewRequest("POST", "/chat/rooms", strings.NewReader(`{"name":"Random"}`))},
		{name: "query parameter", request: httptest.NewRequest("POST", "/chat/rooms?name=Random", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t, true)
			f.queries.EXPECT().
				CreateRoom(gomock.Any(), chat.CreateRoomCommand{Name: "Random"}).
				Return(chat.Room{ID: "abc", Name: "Random"}, nil)

			rec := serve(f.router, tt.request)

			req.Equal(http.StatusCreated, rec.Code)
			req.Contains(rec.Body.String(), `"name":"Random"`)
		})
	}
}

func TestRouter_CreateRoom_Invalid(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.queries.EXPECT().CreateRoom(gomock.Any(), gomock.Any()).Return(chat.Room{}, errors.ErrInvalidRoomName)

	rec := serve(f.router, httptest.NewRequest("POST", "/chat/rooms", nil))
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = serve(f.router, httptest.NewRequest("POST", "/chat/rooms", strings.NewReader(`{`)))
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestRouter_GetMessages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.queries.EXPECT().
		GetMessages(gomock.Any(), chat.GetMessagesCommand{RoomID: "general", Limit: 20}).
		Return([]chat.Message{chat.NewMessage("general", "alice", "hi")}, nil)

	rec := serve(f.router, httptest.NewRequest("GET", "/chat/rooms/general/messages?limit=20", nil))

	req.Equal(http.StatusOK, rec.Code)
	var messages []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &messages))
	req.Equal("alice", messages[0]["sender"])
	req.Equal("general", messages[0]["room_id"])
}

func TestRouter_GetMessages_Errors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.queries.EXPECT().GetMessages(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("store: %w", context.DeadlineExceeded))

	req.Equal(http.StatusBadRequest, serve(f.router, httptest.NewRequest("GET", "/chat/rooms/general/messages?limit=ten", nil)).Code)
	req.Equal(http.StatusInternalServerError, serve(f.router, httptest.NewRequest("GET", "/chat/rooms/general/messages", nil)).Code)
}

func TestRouter_GetMessages_Unknown_Room_Is_Empty(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.queries.EXPECT().
		GetMessages(gomock.Any(), chat.GetMessagesCommand{RoomID: "nowhere"}).
		Return([]chat.Message{}, nil)

	rec := serve(f.router, httptest.NewRequest("GET", "/chat/rooms/nowhere/messages", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`[]`, rec.Body.String())
}

func TestRouter_Participants_Are_Live_Members(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.registry.EXPECT().MembersOf(chat.RoomID("general")).Return([]chat.UserID{"alice", "bob"})

	rec := serve(f.router, httptest.NewRequest("GET", "/chat/rooms/general/participants", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"room_id":"general","participants":["alice","bob"]}`, rec.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)

	preflight := httptest.NewRequest("OPTIONS", "/chat/rooms", nil)
	preflight.Header.Set("Origin", "https://chat.example")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(f.router, preflight)
	req.Equal("https://chat.example", rec.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest("OPTIONS", "/chat/rooms", nil)
	other.Header.Set("Origin", "https://evil.example")
	other.Header.Set("Access-Control-Request-Method", "POST")
	rec = serve(f.router, other)
	req.Empty(rec.Header().Get("Access-Control-Allow-Origin"))
}
