package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a WebSocket.
// Requests without an Origin header come from non-browser clients and are accepted.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

// NewOriginPolicy accepts "*" or a list of scheme://host[:port] origins.
// An empty list allows every origin.
func NewOriginPolicy(origins []string, log *slog.Logger) OriginPolicy {
	policy := OriginPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn("Ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			policy.allowed[normalized] = struct{}{}
		}
	}
	if len(policy.allowed) == 0 {
		policy.allowAll = true
	}
	return policy
}

func (p OriginPolicy) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
