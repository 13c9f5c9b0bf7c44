// internal/handlers/multiplayer.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jetarena/jetarena/internal/apperr"
)

// SetMatchStateHandler stores the room-keyed "last known state" fallback used
// by clients recovering from a relay blip. The body is stored verbatim.
func (s *APIServer) SetMatchStateHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, apperr.InvalidState("bad request payload"))
		return
	}
	if err := s.Presence.SetMatchState(r.Context(), roomCode(r), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stored": true})
}

// GetMatchStateHandler returns the room snapshot, 404 once its lease lapses.
func (s *APIServer) GetMatchStateHandler(w http.ResponseWriter, r *http.Request) {
	state, ok, err := s.Presence.GetMatchState(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.NotFound("no match state"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(state)
}

// DeleteMatchStateHandler clears the room snapshot once a match ends.
func (s *APIServer) DeleteMatchStateHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Presence.DeleteMatchState(r.Context(), roomCode(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
