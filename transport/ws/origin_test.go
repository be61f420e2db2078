package ws

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginPolicy_Check(t *testing.T) {
	tests := []struct {
		name     string
		origins  []string
		origin   string
		expected bool
	}{
		{name: "no configuration allows all", origins: nil, origin: "https://any.example", expected: true},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example", expected: true},
		{name: "exact match", origins: []string{"https://chat.example"}, origin: "https://chat.example", expected: true},
		{name: "case insensitive", origins: []string{"https://Chat.Example"}, origin: "HTTPS://chat.example", expected: true},
		{name: "port matters", origins: []string{"https://chat.example"}, origin: "https://chat.example:8443", expected: false},
		{name: "other host", origins: []string{"https://chat.example"}, origin: "https://evil.example", expected: false},
		{name: "no origin header", origins: []string{"https://chat.example"}, origin: "", expected: true},
		{name: "invalid configured entries ignored", origins: []string{"not an origin", " ", "https://chat.example"}, origin: "https://chat.example", expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			policy := NewOriginPolicy(tt.origins, slog.Default())
			r := httptest.NewRequest("GET", "/ws/general", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			req.Equal(tt.expected, policy.Check(r))
		})
	}
}
