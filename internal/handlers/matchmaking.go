// internal/handlers/matchmaking.go
package handlers

import (
	"net/http"

	"github.com/jetarena/jetarena/internal/apperr"
)

type queueRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Mode       string `json:"mode"`
	Difficulty string `json:"difficulty"`
}

// QueueJoinHandler enqueues the player for quick-match. A player already
// queued (any mode) must leave first; re-joining the same mode just reports
// the existing position on the next poll.
func (s *APIServer) QueueJoinHandler(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, apperr.InvalidState("playerId is required"))
		return
	}
	if err := requireOwner(r, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	mode, queued, err := s.Queue.IsQueued(r.Context(), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if queued {
		if mode != req.Mode {
			writeError(w, apperr.Conflict("already queued for "+mode))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"queued": true, "mode": mode})
		return
	}
	if err := s.Queue.Enqueue(r.Context(), req.PlayerID, req.PlayerName, req.Mode, req.Difficulty); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queued": true, "mode": req.Mode})
}

// QueueLeaveHandler removes the player from whatever queue holds them.
func (s *APIServer) QueueLeaveHandler(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, apperr.InvalidState("playerId is required"))
		return
	}
	if err := requireOwner(r, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Queue.Dequeue(r.Context(), req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"queued": false})
}

// QueuePollHandler runs one FindMatch pass for the player. Clients call this
// on an interval until matched; an unmatched response carries the queue position.
func (s *APIServer) QueuePollHandler(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" || req.Mode == "" {
		writeError(w, apperr.InvalidState("playerId and mode are required"))
		return
	}
	if err := requireOwner(r, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.Queue.FindMatch(r.Context(), req.PlayerID, req.PlayerName, req.Mode, req.Difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// QueueStatusHandler reports whether (and where) a player is queued.
func (s *APIServer) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		writeError(w, apperr.InvalidState("playerId is required"))
		return
	}
	mode, queued, err := s.Queue.IsQueued(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queued": queued, "mode": mode})
}
