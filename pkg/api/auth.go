// API authentication middleware, static key.
//
// When router.api_key is non-empty in config, every request MUST carry:
//
//	Authorization: Bearer <api_key>
//
// or:
//
//	X-API-Key: <api_key>
//
// GET /api/health is exempt. IPC websocket upgrades may pass the key as a
// query parameter instead:
//
//	ws://host/ipc?token=<api_key>
//
// When api_key is empty all requests are allowed through and a warning is
// logged once at startup.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sipeed/discord-router/pkg/logger"
)

// authMiddleware wraps a handler with key checking.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		logger.WarnC("auth", "API auth DISABLED, set router.api_key to require a key")
		return next
	}

	logger.InfoC("auth", "API key auth ENABLED")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !tokenValid(extractToken(r), apiKey) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="discord-router"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized: api key required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the key from the Authorization header, the X-API-Key
// header, or the ?token= query param.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return r.URL.Query().Get("token")
}

// tokenValid does a constant-time comparison.
func tokenValid(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func isPublicPath(path string) bool {
	return path == "/api/health"
}
