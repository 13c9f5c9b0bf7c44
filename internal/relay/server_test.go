// internal/relay/server_test.go
package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jetarena/jetarena/internal/room"
	"github.com/jetarena/jetarena/internal/store"
)

// newTestClient builds a member with a buffered out channel we can drain in
// assertions, without a real websocket behind it.
func newTestClient(playerID string) *client {
	return &client{
		id:         uuid.New(),
		playerID:   playerID,
		playerName: playerID,
		out:        make(chan []byte, outChanBuffer),
	}
}

func drain(t *testing.T, cl *client) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for {
		select {
		case raw := <-cl.out:
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &m))
			frames = append(frames, m)
		default:
			return frames
		}
	}
}

func newTestRelay(t *testing.T) (*Server, *room.Registry) {
	t.Helper()
	rooms := room.NewRegistry(store.NewMemoryStore(), nil)
	return NewServer(rooms, nil), rooms
}

// seat joins a test client into a room channel the way a join_game would.
func seat(s *Server, code string, cl *client) *channel {
	ch := s.getOrCreateChannel(code)
	ch.mu.Lock()
	ch.members[cl.id] = cl
	ch.mu.Unlock()
	return ch
}

func TestBroadcastExcludesSender(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	sender := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", sender)
	seat(s, "ROOM01", other)

	got := s.handleMessage(ctx, ch, sender, map[string]interface{}{
		"type": evPlayerState, "x": 10.0, "y": 20.0,
	})
	require.Equal(t, ch, got)

	require.Empty(t, drain(t, sender), "position traffic does not echo to the sender")
	frames := drain(t, other)
	require.Len(t, frames, 1)
	require.Equal(t, outGameUpdate, frames[0]["type"])
	require.Equal(t, "player_state", frames[0]["event"])
	require.EqualValues(t, 10, frames[0]["x"])
	require.NotEmpty(t, frames[0]["timestamp"], "every relayed event carries a server timestamp")
}

func TestBroadcastIncludesSenderForConfirmations(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	sender := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", sender)
	seat(s, "ROOM01", other)

	s.handleMessage(ctx, ch, sender, map[string]interface{}{"type": evPlayerHit, "damage": 15.0})

	require.Len(t, drain(t, sender), 1, "hit confirmations echo back to the sender")
	require.Len(t, drain(t, other), 1)
}

func TestHazardRelay(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	sender := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", sender)
	seat(s, "ROOM01", other)

	s.handleMessage(ctx, ch, sender, map[string]interface{}{"type": evSendHazard, "hazard": "asteroids"})

	require.Empty(t, drain(t, sender))
	frames := drain(t, other)
	require.Len(t, frames, 1)
	require.Equal(t, outReceiveHazard, frames[0]["type"])
	require.Equal(t, "asteroids", frames[0]["hazard"])
}

func TestGameEventKeepsItsName(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	sender := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", sender)
	seat(s, "ROOM01", other)

	s.handleMessage(ctx, ch, sender, map[string]interface{}{
		"type": evGameEvent, "event": "powerup_collected", "powerup": "shield",
	})

	frames := drain(t, other)
	require.Len(t, frames, 1)
	require.Equal(t, outGameUpdate, frames[0]["type"])
	require.Equal(t, "powerup_collected", frames[0]["event"],
		"the payload's own event name must survive the relay")
	require.Equal(t, "shield", frames[0]["powerup"])
}

func TestGameplayRequiresJoin(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	cl := newTestClient("p1")
	got := s.handleMessage(ctx, nil, cl, map[string]interface{}{"type": evPlayerState})
	require.Nil(t, got)

	frames := drain(t, cl)
	require.Len(t, frames, 1)
	require.Equal(t, outError, frames[0]["type"])
}

func TestJoinGameHandshake(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	joiner := newTestClient("")
	resident := newTestClient("p1")
	seat(s, "ROOM01", resident)

	got := s.handleMessage(ctx, nil, joiner, map[string]interface{}{
		"type": evJoinGame, "roomCode": "room01", "playerId": "p2", "playerName": "Bandit",
	})
	require.NotNil(t, got)
	require.Equal(t, "ROOM01", got.code, "room codes are case-insensitive on join")

	frames := drain(t, joiner)
	require.Len(t, frames, 1)
	require.Equal(t, outJoinedGame, frames[0]["type"])

	frames = drain(t, resident)
	require.Len(t, frames, 1)
	require.Equal(t, outPlayerJoined, frames[0]["type"])
	require.Equal(t, "p2", frames[0]["playerId"])
}

func TestChatTruncation(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	sender := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", sender)
	seat(s, "ROOM01", other)

	long := make([]rune, maxChatMessageLen+50)
	for i := range long {
		long[i] = 'a'
	}
	s.handleMessage(ctx, ch, sender, map[string]interface{}{"type": evChatMessage, "message": string(long)})

	frames := drain(t, other)
	require.Len(t, frames, 1)
	require.Equal(t, outChat, frames[0]["type"])
	require.Len(t, frames[0]["message"].(string), maxChatMessageLen)
}

func TestReadyStatusWriteThrough(t *testing.T) {
	s, rooms := newTestRelay(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "p1", "Ace", room.ModeVersus, "MEDIUM")
	require.NoError(t, err)
	_, err = rooms.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)

	p1 := newTestClient("p1")
	p2 := newTestClient("p2")
	ch := seat(s, r.Code, p1)
	seat(s, r.Code, p2)

	s.handleMessage(ctx, ch, p1, map[string]interface{}{
		"type": evReadyStatus, "playerId": "p1", "ready": true,
	})

	// Both members see the room_update, sender included.
	for _, cl := range []*client{p1, p2} {
		frames := drain(t, cl)
		require.Len(t, frames, 1)
		require.Equal(t, outRoomUpdate, frames[0]["type"])
		require.NotNil(t, frames[0]["room"], "write-through result rides along")
	}

	got, err := rooms.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.True(t, got.Players[0].Ready)
}

func TestMatchEndWriteThroughAndHook(t *testing.T) {
	s, rooms := newTestRelay(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "p1", "Ace", room.ModeVersus, "MEDIUM")
	require.NoError(t, err)
	_, err = rooms.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)
	_, err = rooms.SetReady(ctx, r.Code, "p1", true)
	require.NoError(t, err)
	_, err = rooms.SetReady(ctx, r.Code, "p2", true)
	require.NoError(t, err)
	_, err = rooms.StartGame(ctx, r.Code)
	require.NoError(t, err)

	var hooked *room.Room
	s.OnMatchEnd = func(r *room.Room) { hooked = r }

	p1 := newTestClient("p1")
	ch := seat(s, r.Code, p1)

	s.handleMessage(ctx, ch, p1, map[string]interface{}{
		"type": evMatchEnd, "winnerId": "p2",
	})

	frames := drain(t, p1)
	require.Len(t, frames, 1)
	require.Equal(t, outGameUpdate, frames[0]["type"])
	require.Equal(t, "match_end", frames[0]["event"])

	got, err := rooms.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Equal(t, room.StatusFinished, got.Status)
	require.Equal(t, "p2", got.WinnerID)

	require.NotNil(t, hooked)
	require.Equal(t, r.Code, hooked.Code)
}

func TestLeaveGameNotifiesRoom(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	leaver := newTestClient("p1")
	other := newTestClient("p2")
	ch := seat(s, "ROOM01", leaver)
	seat(s, "ROOM01", other)

	got := s.handleMessage(ctx, ch, leaver, map[string]interface{}{"type": evLeaveGame})
	require.Nil(t, got)

	frames := drain(t, other)
	require.Len(t, frames, 1)
	require.Equal(t, outPlayerLeft, frames[0]["type"])
	require.Equal(t, "p1", frames[0]["playerId"])
}

func TestUnknownEventRejected(t *testing.T) {
	s, _ := newTestRelay(t)
	ctx := context.Background()

	cl := newTestClient("p1")
	ch := seat(s, "ROOM01", cl)

	s.handleMessage(ctx, ch, cl, map[string]interface{}{"type": "warp_drive"})

	frames := drain(t, cl)
	require.Len(t, frames, 1)
	require.Equal(t, outError, frames[0]["type"])
}
