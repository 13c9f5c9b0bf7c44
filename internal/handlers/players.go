// internal/handlers/players.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/presence"
)

// PlayerJoinHandler registers a player in the live directory and flags them as
// just-joined. The body is a free-form presence record; an "id" field is
// honored, otherwise one is generated.
func (s *APIServer) PlayerJoinHandler(w http.ResponseWriter, r *http.Request) {
	rec := presence.Record{}
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	id, _ := rec["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	delete(rec, "id")
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.SetPlayer(r.Context(), id, rec); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.MarkNew(r.Context(), id); err != nil {
		s.Logger.Warnf("failed to flag new player %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// PlayerUpdateHandler merge-writes presence fields and renews the lease.
// 404 once the lease has lapsed: updates never resurrect a dead record.
func (s *APIServer) PlayerUpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec := presence.Record{}
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	delete(rec, "id")
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.Presence.UpdatePlayer(r.Context(), id, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.NotFound("player not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// PlayerActionHandler records the player's latest visible action for the
// directory view.
func (s *APIServer) PlayerActionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Action string `json:"action"`
		Emoji  string `json:"emoji"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.Presence.SetPlayerAction(r.Context(), id, req.Action, req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.NotFound("player not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// PlayerLeaveHandler removes the player from the directory immediately, along
// with their game-state snapshot.
func (s *APIServer) PlayerLeaveHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.DeletePlayer(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.DeleteGameState(r.Context(), id); err != nil {
		s.Logger.Warnf("failed to clear game state for %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

// ActivePlayersHandler lists live presence records sorted by score, each
// decorated with the just-joined flag, spectator count and recent boss defeats.
func (s *APIServer) ActivePlayersHandler(w http.ResponseWriter, r *http.Request) {
	players, err := s.Presence.ListPlayers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for _, rec := range players {
		id, _ := rec["id"].(string)
		if isNew, err := s.Presence.IsNew(r.Context(), id); err == nil {
			rec["isNew"] = isNew
		}
		if n, err := s.Presence.SpectatorCount(r.Context(), id); err == nil {
			rec["spectators"] = n
		}
		if defeats, err := s.Presence.BossDefeats(r.Context(), id); err == nil && len(defeats) > 0 {
			rec["bossDefeats"] = defeats
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"players": players, "count": len(players)})
}

// SetGameStateHandler stores the player's opaque snapshot verbatim.
func (s *APIServer) SetGameStateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, apperr.InvalidState("bad request payload"))
		return
	}
	if err := s.Presence.SetGameState(r.Context(), id, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stored": true})
}

// GetGameStateHandler returns the player's latest snapshot, 404 once expired.
func (s *APIServer) GetGameStateHandler(w http.ResponseWriter, r *http.Request) {
	state, ok, err := s.Presence.GetGameState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.NotFound("no game state"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(state)
}

// BossDefeatHandler records a boss takedown for the directory highlight.
func (s *APIServer) BossDefeatHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		BossLevel int `json:"bossLevel"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.BossLevel <= 0 {
		writeError(w, apperr.InvalidState("bossLevel is required"))
		return
	}
	if err := requireOwner(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Presence.MarkBossDefeat(r.Context(), id, req.BossLevel); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}
