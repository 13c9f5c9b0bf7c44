// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/auth"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error through the apperr taxonomy onto an HTTP status and
// a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"error": apperr.Message(err)})
}

// decodeJSON parses the request body into dst. An empty body is allowed and
// leaves dst zero-valued.
func decodeJSON(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && err.Error() != "EOF" {
		return apperr.InvalidState("bad request payload")
	}
	return nil
}

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// sessionToken pulls a guest session token from the Authorization header
// (Bearer) or the session_token cookie. Empty when the request is anonymous.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return extractCookieToken(r.Header.Get("Cookie"), "session_token")
}

// requireOwner enforces that, when a session token is presented, it was issued
// for playerID. Anonymous requests pass: sessions are optional by design, they
// only bind identity once a client opts in.
func requireOwner(r *http.Request, playerID string) error {
	token := sessionToken(r)
	if token == "" {
		return nil
	}
	sub, _, err := auth.VerifySessionToken(token)
	if err != nil {
		return apperr.Forbidden("invalid session token")
	}
	if sub != playerID {
		return apperr.Forbidden("session does not match player")
	}
	return nil
}
