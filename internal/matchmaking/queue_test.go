// internal/matchmaking/queue_test.go
package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/room"
	"github.com/jetarena/jetarena/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *room.Registry) {
	t.Helper()
	ms := store.NewMemoryStore()
	rooms := room.NewRegistry(ms, nil)
	return NewQueue(ms, rooms, nil), rooms
}

func TestEnqueueRejectsBadMode(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Enqueue(context.Background(), "p1", "Ace", "battle-royale", "EASY")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestIsQueuedLifecycle(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, queued, err := q.IsQueued(ctx, "p1")
	require.NoError(t, err)
	require.False(t, queued)

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeCoop, "EASY"))
	mode, queued, err := q.IsQueued(ctx, "p1")
	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, room.ModeCoop, mode)

	// Leave, then queue for another mode.
	require.NoError(t, q.Dequeue(ctx, "p1"))
	_, queued, err = q.IsQueued(ctx, "p1")
	require.NoError(t, err)
	require.False(t, queued)

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeVersus, "HARD"))
	mode, queued, err = q.IsQueued(ctx, "p1")
	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, room.ModeVersus, mode)
}

func TestFindMatchNeverMatchesSelf(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeVersus, "HARD"))

	result, err := q.FindMatch(ctx, "p1", "Ace", room.ModeVersus, "HARD")
	require.NoError(t, err)
	require.False(t, result.Matched)
	require.Equal(t, 1, result.QueuePosition, "a lone caller sits first in line")
}

func TestFindMatchModeIsolation(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeCoop, "EASY"))
	require.NoError(t, q.Enqueue(ctx, "p2", "Bandit", room.ModeVersus, "EASY"))

	result, err := q.FindMatch(ctx, "p2", "Bandit", room.ModeVersus, "EASY")
	require.NoError(t, err)
	require.False(t, result.Matched, "players in different modes never match")
}

func TestFindMatchPairsOldestFirst(t *testing.T) {
	q, rooms := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeVersus, "HARD"))
	require.NoError(t, q.Enqueue(ctx, "p2", "Bandit", room.ModeVersus, "HARD"))

	result, err := q.FindMatch(ctx, "p2", "Bandit", room.ModeVersus, "HARD")
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.NotNil(t, result.Opponent)
	require.Equal(t, "p1", result.Opponent.PlayerID)
	require.NotEmpty(t, result.RoomCode)
	require.False(t, result.IsHost, "the waiting opponent hosts")

	// Both players are seated and the back-reference points at the new room.
	r, err := rooms.GetRoom(ctx, result.RoomCode)
	require.NoError(t, err)
	require.Len(t, r.Players, 2)
	require.Equal(t, "p1", r.HostID)
	require.Equal(t, "Ace", r.Players[0].Name)
	require.Equal(t, "Bandit", r.Players[1].Name, "the caller is seated under their real name")

	code, ok, err := rooms.GetPlayerRoom(ctx, "p2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result.RoomCode, code)

	// Both queue entries are consumed.
	_, queued, err := q.IsQueued(ctx, "p1")
	require.NoError(t, err)
	require.False(t, queued)
	_, queued, err = q.IsQueued(ctx, "p2")
	require.NoError(t, err)
	require.False(t, queued)
}

func TestFindMatchConcurrentSingleConsumption(t *testing.T) {
	q, rooms := newTestQueue(t)
	ctx := context.Background()

	// One waiting opponent, many racing callers.
	require.NoError(t, q.Enqueue(ctx, "waiting", "Waiting", room.ModeVersus, "HARD"))

	const callers = 6
	var wg sync.WaitGroup
	results := make([]*MatchResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := q.FindMatch(ctx, fmt.Sprintf("caller-%d", i), "", room.ModeVersus, "HARD")
			if err == nil {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	matched := 0
	for _, r := range results {
		if r != nil && r.Matched {
			matched++
			got, err := rooms.GetRoom(ctx, r.RoomCode)
			require.NoError(t, err)
			require.Len(t, got.Players, 2)
		}
	}
	require.Equal(t, 1, matched, "one opponent entry pairs exactly one caller")
}

func TestFindMatchQueuePosition(t *testing.T) {
	q, rooms := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "p1", "Ace", room.ModeCoop, "EASY"))
	require.NoError(t, q.Enqueue(ctx, "p2", "Bandit", room.ModeCoop, "EASY"))
	require.NoError(t, q.Enqueue(ctx, "p3", "Crash", room.ModeCoop, "EASY"))

	// p3 matches p1 (oldest); p2 is left alone in the queue. No name on the
	// poll: the one on p3's queue entry is used.
	result, err := q.FindMatch(ctx, "p3", "", room.ModeCoop, "EASY")
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.Equal(t, "p1", result.Opponent.PlayerID)

	r, err := rooms.GetRoom(ctx, result.RoomCode)
	require.NoError(t, err)
	require.Equal(t, "Crash", r.Players[1].Name, "name falls back to the consumed queue entry")

	result, err = q.FindMatch(ctx, "p2", "Bandit", room.ModeCoop, "EASY")
	require.NoError(t, err)
	require.False(t, result.Matched)
	require.Equal(t, 1, result.QueuePosition)
}
