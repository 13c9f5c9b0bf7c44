// internal/handlers/server.go

// Package handlers exposes the coordination core over HTTP: room lifecycle,
// matchmaking, presence/spectating, guest sessions and the relay websocket.
// Handlers stay thin; every rule lives in the internal packages and surfaces
// here only as an apperr mapped onto a status code.
package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/jetarena/jetarena/internal/matchmaking"
	"github.com/jetarena/jetarena/internal/presence"
	"github.com/jetarena/jetarena/internal/relay"
	"github.com/jetarena/jetarena/internal/room"
)

// APIServer bundles the coordination subsystems behind the HTTP surface.
type APIServer struct {
	Logger   *log.Logger
	Rooms    *room.Registry
	Queue    *matchmaking.Queue
	Presence *presence.Directory
	Relay    *relay.Server
}

// NewAPIServer wires the handler layer over the given subsystems.
func NewAPIServer(logger *log.Logger, rooms *room.Registry, queue *matchmaking.Queue, dir *presence.Directory, rly *relay.Server) *APIServer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &APIServer{Logger: logger, Rooms: rooms, Queue: queue, Presence: dir, Relay: rly}
}

// Routes registers every endpoint on mux.
func (s *APIServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.HealthHandler)

	// rooms
	mux.HandleFunc("POST /api/rooms", s.CreateRoomHandler)
	mux.HandleFunc("GET /api/rooms/{code}", s.GetRoomHandler)
	mux.HandleFunc("POST /api/rooms/{code}/join", s.JoinRoomHandler)
	mux.HandleFunc("POST /api/rooms/{code}/leave", s.LeaveRoomHandler)
	mux.HandleFunc("POST /api/rooms/{code}/ready", s.SetReadyHandler)
	mux.HandleFunc("POST /api/rooms/{code}/start", s.StartRoomHandler)
	mux.HandleFunc("POST /api/rooms/{code}/end", s.EndRoomHandler)
	mux.HandleFunc("GET /api/players/{id}/room", s.PlayerRoomHandler)

	// matchmaking
	mux.HandleFunc("POST /api/matchmaking/join", s.QueueJoinHandler)
	mux.HandleFunc("POST /api/matchmaking/leave", s.QueueLeaveHandler)
	mux.HandleFunc("POST /api/matchmaking/poll", s.QueuePollHandler)
	mux.HandleFunc("GET /api/matchmaking/status", s.QueueStatusHandler)

	// room-keyed match state fallback
	mux.HandleFunc("POST /api/multiplayer/{code}/state", s.SetMatchStateHandler)
	mux.HandleFunc("GET /api/multiplayer/{code}/state", s.GetMatchStateHandler)
	mux.HandleFunc("DELETE /api/multiplayer/{code}/state", s.DeleteMatchStateHandler)

	// presence directory
	mux.HandleFunc("POST /api/players/join", s.PlayerJoinHandler)
	mux.HandleFunc("GET /api/players/active", s.ActivePlayersHandler)
	mux.HandleFunc("POST /api/players/{id}/update", s.PlayerUpdateHandler)
	mux.HandleFunc("POST /api/players/{id}/action", s.PlayerActionHandler)
	mux.HandleFunc("POST /api/players/{id}/leave", s.PlayerLeaveHandler)
	mux.HandleFunc("POST /api/players/{id}/gamestate", s.SetGameStateHandler)
	mux.HandleFunc("GET /api/players/{id}/gamestate", s.GetGameStateHandler)
	mux.HandleFunc("POST /api/players/{id}/boss-defeat", s.BossDefeatHandler)

	// spectating
	mux.HandleFunc("POST /api/spectate/{id}", s.SpectateHandler)
	mux.HandleFunc("POST /api/spectate/{id}/leave", s.SpectateLeaveHandler)
	mux.HandleFunc("POST /api/spectate/{id}/comments", s.PostCommentHandler)
	mux.HandleFunc("GET /api/spectate/{id}/comments", s.GetCommentsHandler)

	// guest sessions
	mux.HandleFunc("POST /api/players/start-session", s.StartSessionHandler)
	mux.HandleFunc("POST /api/players/end-session", s.EndSessionHandler)

	// relay websocket
	mux.HandleFunc("/ws", s.Relay.Handler())
}

// HealthHandler reports liveness.
func (s *APIServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
