// internal/handlers/session.go
package handlers

import (
	"net/http"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/auth"
)

// StartSessionHandler mints a guest identity: a fresh player id plus a signed
// token binding it to the chosen display name. The token is returned in the
// body and set as a cookie for browser clients.
func (s *APIServer) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerName string `json:"playerName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerName == "" {
		req.PlayerName = "Player"
	}
	sess, err := auth.NewSession(req.PlayerName)
	if err != nil {
		s.Logger.Errorf("failed to mint session: %v", err)
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sess)
}

// EndSessionHandler tears down a guest's live footprint: queue entry, current
// room seat and presence record. Best-effort by design; anything missed lapses
// via TTL anyway.
func (s *APIServer) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
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

	ctx := r.Context()
	if err := s.Queue.Dequeue(ctx, req.PlayerID); err != nil {
		s.Logger.Warnf("end session: dequeue failed for %s: %v", req.PlayerID, err)
	}
	if code, ok, err := s.Rooms.GetPlayerRoom(ctx, req.PlayerID); err == nil && ok {
		if _, err := s.Rooms.LeaveRoom(ctx, code, req.PlayerID); err != nil {
			s.Logger.Warnf("end session: leave room %s failed for %s: %v", code, req.PlayerID, err)
		}
	}
	if err := s.Presence.DeletePlayer(ctx, req.PlayerID); err != nil {
		s.Logger.Warnf("end session: presence delete failed for %s: %v", req.PlayerID, err)
	}
	if err := s.Presence.DeleteGameState(ctx, req.PlayerID); err != nil {
		s.Logger.Warnf("end session: game state delete failed for %s: %v", req.PlayerID, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:   "session_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
}
