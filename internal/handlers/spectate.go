// internal/handlers/spectate.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jetarena/jetarena/internal/apperr"
)

type spectateRequest struct {
	SpectatorID string `json:"spectatorId"`
}

// SpectateHandler registers a watcher on the target player and returns the
// target's latest game-state snapshot so the viewer can render immediately.
func (s *APIServer) SpectateHandler(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	var req spectateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SpectatorID == "" {
		req.SpectatorID = uuid.NewString()
	}
	if _, ok, err := s.Presence.GetPlayer(r.Context(), targetID); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, apperr.NotFound("player not found"))
		return
	}
	if err := s.Presence.AddSpectator(r.Context(), targetID, req.SpectatorID); err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"spectatorId": req.SpectatorID}
	if state, ok, err := s.Presence.GetGameState(r.Context(), targetID); err == nil && ok {
		resp["gameState"] = json.RawMessage(state)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SpectateLeaveHandler drops a watcher from the target's spectator set.
func (s *APIServer) SpectateLeaveHandler(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	var req spectateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SpectatorID == "" {
		writeError(w, apperr.InvalidState("spectatorId is required"))
		return
	}
	if err := s.Presence.RemoveSpectator(r.Context(), targetID, req.SpectatorID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

// PostCommentHandler appends a spectator comment to the target's capped feed.
func (s *APIServer) PostCommentHandler(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	var req struct {
		SpectatorID string `json:"spectatorId"`
		Name        string `json:"name"`
		Text        string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Text == "" {
		writeError(w, apperr.InvalidState("text is required"))
		return
	}
	comment := map[string]interface{}{
		"id":          uuid.NewString(),
		"spectatorId": req.SpectatorID,
		"name":        req.Name,
		"text":        req.Text,
		"postedAt":    time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(comment)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.AddComment(r.Context(), targetID, raw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// GetCommentsHandler returns the target's recent comments, newest first.
func (s *APIServer) GetCommentsHandler(w http.ResponseWriter, r *http.Request) {
	comments, err := s.Presence.GetComments(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"comments": comments, "count": len(comments)})
}
