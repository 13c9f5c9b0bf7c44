// internal/handlers/rooms.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/room"
)

type roomRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Mode       string `json:"mode"`
	Difficulty string `json:"difficulty"`
	Ready      bool   `json:"ready"`
	WinnerID   string `json:"winnerId"`
}

func roomCode(r *http.Request) string {
	return strings.ToUpper(r.PathValue("code"))
}

// CreateRoomHandler creates a room with the requester as host and returns it.
func (s *APIServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, apperr.InvalidState("playerId is required"))
		return
	}
	if !room.ValidMode(req.Mode) {
		writeError(w, apperr.InvalidState("invalid mode"))
		return
	}
	if err := requireOwner(r, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	rm, err := s.Rooms.CreateRoom(r.Context(), req.PlayerID, req.PlayerName, req.Mode, req.Difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

// GetRoomHandler returns the room by code, 404 when absent or expired.
func (s *APIServer) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.GetRoom(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

// JoinRoomHandler seats the player in the room. Re-joining is idempotent.
func (s *APIServer) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
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
	rm, err := s.Rooms.JoinRoom(r.Context(), roomCode(r), req.PlayerID, req.PlayerName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

// LeaveRoomHandler unseats the player; the room reports whether it survived.
func (s *APIServer) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
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
	found, err := s.Rooms.LeaveRoom(r.Context(), roomCode(r), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": found})
}

// SetReadyHandler toggles the player's ready flag and returns the room.
func (s *APIServer) SetReadyHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
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
	rm, err := s.Rooms.SetReady(r.Context(), roomCode(r), req.PlayerID, req.Ready)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

// StartRoomHandler moves the room into playing. Host-only.
func (s *APIServer) StartRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	code := roomCode(r)
	rm, err := s.Rooms.GetRoom(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID != rm.HostID {
		writeError(w, apperr.Forbidden("only the host can start the game"))
		return
	}
	if err := requireOwner(r, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	rm, err = s.Rooms.StartGame(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

// EndRoomHandler finishes the match, recording an optional winner. Idempotent.
func (s *APIServer) EndRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rm, err := s.Rooms.EndGame(r.Context(), roomCode(r), req.WinnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.Relay != nil && s.Relay.OnMatchEnd != nil {
		s.Relay.OnMatchEnd(rm)
	}
	writeJSON(w, http.StatusOK, rm)
}

// PlayerRoomHandler resolves a player's current room via the back-reference.
func (s *APIServer) PlayerRoomHandler(w http.ResponseWriter, r *http.Request) {
	code, ok, err := s.Rooms.GetPlayerRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.NotFound("player is not in a room"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_code": code})
}
