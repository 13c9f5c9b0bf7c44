// internal/room/registry_test.go
package room

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return NewRegistry(ms, nil), ms
}

func TestCreateRoomCode(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeVersus, "MEDIUM")
	require.NoError(t, err)
	require.Len(t, r.Code, CodeLength)
	for _, c := range r.Code {
		require.NotContains(t, "0O1IL", string(c), "code alphabet excludes ambiguous characters")
		require.Contains(t, codeAlphabet, string(c))
	}
	require.Equal(t, StatusWaiting, r.Status)
	require.Equal(t, "p1", r.HostID)
	require.Len(t, r.Players, 1)
	require.Equal(t, 1, r.Players[0].Slot)

	code, ok, err := reg.GetPlayerRoom(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.Code, code)
}

func TestCreateRoomRejectsBadMode(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.CreateRoom(context.Background(), "p1", "Ace", "battle-royale", "EASY")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestJoinRoomRoster(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeCoop, "EASY")
	require.NoError(t, err)

	r2, err := reg.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)
	require.Len(t, r2.Players, 2)
	require.Equal(t, 2, r2.Players[1].Slot)

	// Re-joining is idempotent.
	r3, err := reg.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)
	require.Len(t, r3.Players, 2)

	// A third player is rejected.
	_, err = reg.JoinRoom(ctx, r.Code, "p3", "Crash")
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Round trip preserves roster ordering.
	got, err := reg.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, []string{got.Players[0].ID, got.Players[1].ID})
}

func TestJoinRoomConcurrentRace(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "host", "Host", ModeVersus, "HARD")
	require.NoError(t, err)

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.JoinRoom(ctx, r.Code, "contender-"+strings.Repeat("x", i+1), "C")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}
	require.Equal(t, 1, wins, "exactly one contender takes the last seat")

	got, err := reg.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Len(t, got.Players, MaxPlayers)
}

func TestLeaveRoomHostPromotion(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeVersus, "EASY")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)

	found, err := reg.LeaveRoom(ctx, r.Code, "p1")
	require.NoError(t, err)
	require.True(t, found)

	got, err := reg.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Equal(t, "p2", got.HostID)
	require.Equal(t, "Bandit", got.HostName)
	require.Len(t, got.Players, 1)

	// Last player out deletes the room.
	_, err = reg.LeaveRoom(ctx, r.Code, "p2")
	require.NoError(t, err)
	_, err = reg.GetRoom(ctx, r.Code)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLeaveOtherRoomKeepsBackReference(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	mine, err := reg.CreateRoom(ctx, "p1", "Ace", ModeVersus, "EASY")
	require.NoError(t, err)
	other, err := reg.CreateRoom(ctx, "p2", "Bandit", ModeVersus, "EASY")
	require.NoError(t, err)

	// Leaving a room the player is not seated in touches nothing.
	found, err := reg.LeaveRoom(ctx, other.Code, "p1")
	require.NoError(t, err)
	require.True(t, found)

	code, ok, err := reg.GetPlayerRoom(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok, "back-reference must survive a leave of someone else's room")
	require.Equal(t, mine.Code, code)

	// Same for a room that does not exist at all.
	found, err = reg.LeaveRoom(ctx, "ZZZZZZ", "p1")
	require.NoError(t, err)
	require.False(t, found)

	_, ok, err = reg.GetPlayerRoom(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStartGameRequiresTwoReady(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeVersus, "MEDIUM")
	require.NoError(t, err)

	// One player, not ready.
	_, err = reg.StartGame(ctx, r.Code)
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = reg.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)

	// Two players, only one ready.
	_, err = reg.SetReady(ctx, r.Code, "p1", true)
	require.NoError(t, err)
	_, err = reg.StartGame(ctx, r.Code)
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	// Failed start mutates nothing.
	got, err := reg.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, got.Status)
	require.Nil(t, got.StartedAt)

	// Both ready: start succeeds.
	_, err = reg.SetReady(ctx, r.Code, "p2", true)
	require.NoError(t, err)
	started, err := reg.StartGame(ctx, r.Code)
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, started.Status)
	require.NotNil(t, started.StartedAt)

	// Starting twice is a conflict; joining mid-game too.
	_, err = reg.StartGame(ctx, r.Code)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = reg.JoinRoom(ctx, r.Code, "p3", "Crash")
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestEndGameIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeVersus, "MEDIUM")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, r.Code, "p2", "Bandit")
	require.NoError(t, err)
	_, err = reg.SetReady(ctx, r.Code, "p1", true)
	require.NoError(t, err)
	_, err = reg.SetReady(ctx, r.Code, "p2", true)
	require.NoError(t, err)
	_, err = reg.StartGame(ctx, r.Code)
	require.NoError(t, err)

	ended, err := reg.EndGame(ctx, r.Code, "p2")
	require.NoError(t, err)
	require.Equal(t, StatusFinished, ended.Status)
	require.Equal(t, "p2", ended.WinnerID)
	require.NotNil(t, ended.EndedAt)

	// A second end keeps the original winner.
	again, err := reg.EndGame(ctx, r.Code, "p1")
	require.NoError(t, err)
	require.Equal(t, "p2", again.WinnerID)
}

func TestSetReadyUnknownPlayer(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.CreateRoom(ctx, "p1", "Ace", ModeCoop, "EASY")
	require.NoError(t, err)

	_, err = reg.SetReady(ctx, r.Code, "ghost", true)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
