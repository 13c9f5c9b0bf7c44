// internal/relay/server.go

// Package relay implements the per-room real-time broadcast channel. Gameplay
// traffic (positions, shots, hits) is latency-sensitive and loss-tolerant, so
// it fans out here instead of passing through the store; only room lifecycle
// transitions write through to the registry, best-effort, so a reconnecting
// client can recover room state after a blip.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jetarena/jetarena/internal/room"
)

const (
	outChanBuffer     = 32
	writeTimeout      = 5 * time.Second
	maxChatMessageLen = 100
)

// Server owns every live room channel in this process. Channels are created on
// first join and dropped when the last member leaves; membership is transient
// per-connection context, never persisted.
type Server struct {
	logger *logrus.Logger
	rooms  *room.Registry

	// OnMatchEnd, when set, is invoked after a successful end-of-match
	// write-through, e.g. to persist the result durably. Fire-and-forget.
	OnMatchEnd func(r *room.Room)

	mu       sync.Mutex
	channels map[string]*channel
}

// channel is one room's broadcast group.
type channel struct {
	code    string
	mu      sync.Mutex
	members map[uuid.UUID]*client
}

// client is one subscribed connection. Writes go through out so a slow member
// only ever blocks on its own transport buffer.
type client struct {
	id         uuid.UUID
	playerID   string
	playerName string
	out        chan []byte
}

// NewServer builds a relay over the given room registry.
func NewServer(rooms *room.Registry, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		logger:   logger,
		rooms:    rooms,
		channels: make(map[string]*channel),
	}
}

// write pushes a frame onto the client's out channel non-blockingly; frames to
// a full or closed channel are dropped (the next tick corrects drift).
func (c *client) write(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (s *Server) getOrCreateChannel(code string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[code]
	if !ok {
		ch = &channel{code: code, members: make(map[uuid.UUID]*client)}
		s.channels[code] = ch
	}
	return ch
}

func (s *Server) dropIfEmpty(ch *channel) {
	ch.mu.Lock()
	empty := len(ch.members) == 0
	ch.mu.Unlock()
	if !empty {
		return
	}
	s.mu.Lock()
	if cur, ok := s.channels[ch.code]; ok && cur == ch {
		delete(s.channels, ch.code)
	}
	s.mu.Unlock()
}

// broadcast fans a payload out to every member of the room, optionally
// skipping the sender. A server timestamp is stamped on every relayed event.
func (s *Server) broadcast(ch *channel, payload map[string]interface{}, exclude *client) {
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	frame, err := json.Marshal(payload)
	if err != nil {
		s.logger.Errorf("relay: failed to marshal broadcast: %v", err)
		return
	}
	ch.mu.Lock()
	members := make([]*client, 0, len(ch.members))
	for _, m := range ch.members {
		if exclude != nil && m.id == exclude.id {
			continue
		}
		members = append(members, m)
	}
	ch.mu.Unlock()
	for _, m := range members {
		if !m.write(frame) {
			s.logger.WithFields(logrus.Fields{"room": ch.code, "player": m.playerID}).
				Warn("relay: dropped frame for slow member")
		}
	}
}

// Handler upgrades the connection and runs the read loop until the client
// disconnects. A client must send a join_game handshake before any gameplay
// event is relayed.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.logger.Warnf("relay: websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl := &client{
			id:  uuid.New(),
			out: make(chan []byte, outChanBuffer),
		}

		go writePump(ctx, c, cl, s.logger)
		cl.write(mustMarshal(map[string]interface{}{"type": outConnected, "status": "ok"}))

		s.logger.WithField("remote", r.RemoteAddr).Info("relay: client connected")
		ch := s.readPump(ctx, c, cl)

		// Cleanup: leave whatever room the connection was in.
		if ch != nil {
			s.removeClient(ch, cl, true)
		}
		s.logger.WithField("remote", r.RemoteAddr).Info("relay: client disconnected")
		c.Close(websocket.StatusNormalClosure, "bye")
	}
}

// readPump consumes inbound frames until error or cancellation, returning the
// channel the client last belonged to (for cleanup).
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, cl *client) *channel {
	var ch *channel
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				return ch
			}
			s.logger.Warnf("relay: read error for player %q: %v", cl.playerID, err)
			return ch
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.write(mustMarshal(map[string]interface{}{"type": outError, "message": "invalid JSON"}))
			continue
		}
		ch = s.handleMessage(ctx, ch, cl, msg)
	}
}

// handleMessage routes one inbound event and returns the client's (possibly
// changed) room channel.
func (s *Server) handleMessage(ctx context.Context, ch *channel, cl *client, msg map[string]interface{}) *channel {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case evJoinGame:
		code, _ := msg["roomCode"].(string)
		playerID, _ := msg["playerId"].(string)
		playerName, _ := msg["playerName"].(string)
		if code == "" || playerID == "" {
			cl.write(mustMarshal(map[string]interface{}{"type": outError, "message": "missing roomCode or playerId"}))
			return ch
		}
		if playerName == "" {
			playerName = "Player"
		}
		if ch != nil {
			s.removeClient(ch, cl, true)
		}
		cl.playerID = playerID
		cl.playerName = playerName
		next := s.getOrCreateChannel(strings.ToUpper(code))
		next.mu.Lock()
		next.members[cl.id] = cl
		next.mu.Unlock()

		s.broadcast(next, map[string]interface{}{
			"type":       outPlayerJoined,
			"playerId":   playerID,
			"playerName": playerName,
		}, cl)
		cl.write(mustMarshal(map[string]interface{}{
			"type":     outJoinedGame,
			"roomCode": next.code,
			"success":  true,
		}))
		s.logger.WithFields(logrus.Fields{"room": next.code, "player": playerID}).Info("relay: player joined room")
		return next

	case evLeaveGame:
		if ch != nil {
			s.removeClient(ch, cl, true)
		}
		return nil
	}

	if ch == nil {
		cl.write(mustMarshal(map[string]interface{}{"type": outError, "message": "join_game required first"}))
		return nil
	}

	switch msgType {
	case evChatMessage:
		if text, ok := msg["message"].(string); ok && len([]rune(text)) > maxChatMessageLen {
			msg["message"] = string([]rune(text)[:maxChatMessageLen])
		}
		s.broadcast(ch, envelope(outChat, "", msg), nil)

	case evReadyStatus:
		playerID, _ := msg["playerId"].(string)
		ready, _ := msg["ready"].(bool)
		payload := envelope(outRoomUpdate, "ready_status", msg)
		if r, err := s.rooms.SetReady(ctx, ch.code, playerID, ready); err != nil {
			s.logger.Warnf("relay: ready write-through failed for room %s: %v", ch.code, err)
		} else {
			payload["room"] = r
		}
		s.broadcast(ch, payload, nil)

	case evGameStarted:
		if _, err := s.rooms.StartGame(ctx, ch.code); err != nil {
			s.logger.Warnf("relay: start write-through failed for room %s: %v", ch.code, err)
		}
		s.broadcast(ch, envelope(outGameUpdate, "game_started", msg), nil)

	case evMatchEnd, evGameOver:
		innerType := "match_end"
		winnerID, _ := msg["winnerId"].(string)
		if msgType == evGameOver {
			innerType = "game_over"
			winnerID = ""
		}
		s.broadcast(ch, envelope(outGameUpdate, innerType, msg), nil)
		if r, err := s.rooms.EndGame(ctx, ch.code, winnerID); err != nil {
			s.logger.Warnf("relay: end write-through failed for room %s: %v", ch.code, err)
		} else if s.OnMatchEnd != nil {
			s.OnMatchEnd(r)
		}

	default:
		rule, ok := relayRules[msgType]
		if !ok {
			cl.write(mustMarshal(map[string]interface{}{"type": outError, "message": "unknown event type: " + msgType}))
			return ch
		}
		exclude := cl
		if rule.includeSender {
			exclude = nil
		}
		s.broadcast(ch, envelope(rule.outType, rule.innerType, msg), exclude)
	}
	return ch
}

// removeClient unsubscribes a client and notifies the remaining members.
func (s *Server) removeClient(ch *channel, cl *client, notify bool) {
	ch.mu.Lock()
	_, present := ch.members[cl.id]
	delete(ch.members, cl.id)
	ch.mu.Unlock()
	if present && notify {
		s.broadcast(ch, map[string]interface{}{
			"type":     outPlayerLeft,
			"playerId": cl.playerID,
		}, nil)
	}
	s.dropIfEmpty(ch)
}

// envelope rebuilds an inbound payload under an outbound type, carrying all
// caller fields through untouched.
func envelope(outType, innerType string, msg map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(msg)+2)
	for k, v := range msg {
		if k == "type" {
			continue
		}
		out[k] = v
	}
	out["type"] = outType
	if innerType != "" {
		out["event"] = innerType
	}
	return out
}

func mustMarshal(v map[string]interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// writePump drains the client's out channel onto the socket until the context
// ends. Each write gets its own timeout so one stuck frame cannot wedge the pump.
func writePump(ctx context.Context, c *websocket.Conn, cl *client, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-cl.out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					logger.Warnf("relay: write error for player %q: %v", cl.playerID, err)
				}
				return
			}
		}
	}
}
