package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrSessionPanic = fmt.Errorf("session panic")

	ErrHandshakeRejected = fmt.Errorf("handshake rejected")
	ErrMalformedFrame    = fmt.Errorf("malformed frame")
	ErrDeliveryFailure   = fmt.Errorf("delivery failure")
	ErrTransportClosed   = fmt.Errorf("transport closed")
	ErrShuttingDown      = fmt.Errorf("gateway is shutting down")
	ErrInvalidContent    = fmt.Errorf("invalid message content")

	ErrRoomNotFound    = fmt.Errorf("room not found")
	ErrInvalidRoomName = fmt.Errorf("invalid room name")
	ErrInvalidToken    = fmt.Errorf("invalid token")
	ErrUnknownDriver   = fmt.Errorf("unknown store driver")
)

// MapToHTTPStatus translates a domain error into the status code returned
// by the query surface.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRoomName), errors.Is(err, ErrMalformedFrame):
		return http.StatusBadRequest
	case errors.Is(err, ErrHandshakeRejected), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
