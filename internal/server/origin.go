// Package server normalizes and validates HTTP origins for WebSocket
// requests to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open WebSocket connections.
// It is built once from the configuration and read concurrently by upgrade
// handlers.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// newOriginPolicy normalizes the configured origin list. "*" switches the
// policy to allow-all; entries that fail to parse are logged and dropped.
func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

// check implements the websocket.Upgrader CheckOrigin contract. Requests
// without an Origin header come from non-browser clients and are allowed;
// browser requests must match the configured allow-list.
func (p *originPolicy) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}

	if p.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		slog.Warn("blocked WebSocket connection with malformed origin", "origin", originHeader)
		return false
	}

	if _, exists := p.allowed[normalized]; exists {
		return true
	}

	slog.Warn("blocked WebSocket connection from disallowed origin", "origin", originHeader)
	return false
}

// normalizeOrigin reduces an origin to lowercase scheme://host form.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
