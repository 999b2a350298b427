package server

import (
	"context"
	"net"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Noema-Transport, X-Noema-Client-ID, X-Noema-Client-Name, X-Noema-Client-Model, X-Noema-Client-Platform, X-Noema-Client-SSID, X-Noema-Relay-Device"
	corsMaxAge       = "86400"
)

var healthPaths = map[string]bool{
	"/health":        true,
	"/v1/health":     true,
	"/api/v0/health": true,
}

// dispatch maps (method, path) to behaviour. Exactly one response is written
// per invocation.
func (s *Server) dispatch(ctx context.Context, w *responseWriter, req *httpRequest, remote net.Addr) {
	cfg := s.configSnapshot()

	if origin := req.Header("origin"); origin != "" {
		w.corsOrigin = allowedOrigin(origin, cfg.AllowedOrigins)
	}

	if req.Method == "OPTIONS" {
		_ = w.writeNoContent(204, [][2]string{
			{"Access-Control-Allow-Methods", corsAllowMethods},
			{"Access-Control-Allow-Headers", corsAllowHeaders},
			{"Access-Control-Max-Age", corsMaxAge},
		})
		return
	}

	// Health stays reachable without auth and without the engine
	if req.Method == "GET" && healthPaths[req.Path] {
		s.handleHealth(w)
		return
	}

	if !s.authorised(req, remote, cfg.AuthToken) {
		_ = w.writeError(401, "Unauthorized")
		return
	}

	switch {
	case req.Method == "GET" && req.Path == "/v1/models":
		s.handleModels(ctx, w)
	case req.Method == "POST" && req.Path == "/v1/chat/completions":
		s.handleChatCompletions(ctx, w, req)
	case req.Method == "POST" && req.Path == "/v1/completions":
		s.handleTextCompletions(ctx, w, req)
	case req.Method == "POST" && req.Path == "/api/v0/responses":
		s.handleResponses(ctx, w, req)
	default:
		_ = w.writeError(404, "Not found")
	}
}

// authorised enforces the configured bearer token. Loopback peers are
// trusted without one so local callers never need credentials.
func (s *Server) authorised(req *httpRequest, remote net.Addr, token string) bool {
	if token == "" {
		return true
	}

	if tcp, ok := remote.(*net.TCPAddr); ok && tcp.IP.IsLoopback() {
		return true
	}

	auth := req.Header("authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return strings.TrimSpace(auth[len(prefix):]) == token
}

func allowedOrigin(origin string, allowed []string) string {
	for _, a := range allowed {
		if a == "*" {
			return origin
		}
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
