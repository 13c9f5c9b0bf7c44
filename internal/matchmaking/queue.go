// internal/matchmaking/queue.go

// Package matchmaking owns the per-mode quick-match queues. Entries live in a
// mode-scoped sorted collection ordered by enqueue time, with a short-lived
// player -> mode back-reference so a player can sit in at most one queue.
package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/room"
	"github.com/jetarena/jetarena/internal/store"
)

const (
	queueKeyPrefix   = "matchmaking:"
	inQueueKeyPrefix = "in_queue:"

	// QueueTTL bounds how long a queue back-reference survives without the
	// client polling. Once it lapses the entry is considered abandoned.
	QueueTTL = 2 * time.Minute
)

// Entry is one queued player, serialized verbatim into the sorted collection.
// The raw JSON doubles as the member identity for the atomic consume.
type Entry struct {
	PlayerID   string    `json:"id"`
	PlayerName string    `json:"name"`
	Difficulty string    `json:"difficulty"`
	JoinedAt   time.Time `json:"joined_at"`
}

// MatchResult is the outcome of one FindMatch pass. When Matched is false,
// QueuePosition carries the caller's 1-based place in line (0 if absent).
type MatchResult struct {
	Matched       bool   `json:"matched"`
	QueuePosition int    `json:"queue_position"`
	RoomCode      string `json:"room_code,omitempty"`
	Opponent      *Entry `json:"opponent,omitempty"`
	IsHost        bool   `json:"isHost"`
}

// Queue coordinates quick-match pairing over the shared store, creating rooms
// through the registry once two compatible players meet.
type Queue struct {
	store  store.Store
	rooms  *room.Registry
	logger *log.Logger
}

// NewQueue builds a matchmaking queue over the given store and room registry.
func NewQueue(s store.Store, rooms *room.Registry, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Queue{store: s, rooms: rooms, logger: logger}
}

func queueKey(mode string) string       { return queueKeyPrefix + mode }
func inQueueKey(playerID string) string { return inQueueKeyPrefix + playerID }

func scoreFor(t time.Time) float64 { return float64(t.UnixNano()) / float64(time.Second) }

// Enqueue inserts the player into the mode queue with the current time as the
// order key and refreshes the back-reference. Callers should check IsQueued
// first; duplicate enqueues create duplicate entries.
func (q *Queue) Enqueue(ctx context.Context, playerID, playerName, mode, difficulty string) error {
	if !room.ValidMode(mode) {
		return apperr.InvalidState("invalid mode")
	}
	entry := Entry{
		PlayerID:   playerID,
		PlayerName: playerName,
		Difficulty: difficulty,
		JoinedAt:   time.Now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	if err := q.store.AddSorted(ctx, queueKey(mode), string(raw), scoreFor(entry.JoinedAt)); err != nil {
		return apperr.Unavailable("matchmaking unavailable", err)
	}
	if err := q.store.Set(ctx, inQueueKey(playerID), mode, QueueTTL); err != nil {
		return apperr.Unavailable("matchmaking unavailable", err)
	}
	q.logger.WithFields(log.Fields{"player": playerID, "mode": mode}).Info("player queued")
	return nil
}

// IsQueued returns the mode the player is queued for, if any. O(1).
func (q *Queue) IsQueued(ctx context.Context, playerID string) (string, bool, error) {
	mode, ok, err := q.store.Get(ctx, inQueueKey(playerID))
	if err != nil {
		return "", false, apperr.Unavailable("matchmaking unavailable", err)
	}
	return mode, ok, nil
}

// Dequeue removes the caller's own entry and clears the back-reference.
// No-op if the player is not queued.
func (q *Queue) Dequeue(ctx context.Context, playerID string) error {
	mode, ok, err := q.IsQueued(ctx, playerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := q.removeFromMode(ctx, playerID, mode); err != nil {
		return err
	}
	if err := q.store.Delete(ctx, inQueueKey(playerID)); err != nil {
		return apperr.Unavailable("matchmaking unavailable", err)
	}
	return nil
}

// removeFromMode scans the mode queue for the player's entry and removes it.
// Returns the removed entry, or nil if the player was not present.
func (q *Queue) removeFromMode(ctx context.Context, playerID, mode string) (*Entry, error) {
	members, err := q.store.RangeSorted(ctx, queueKey(mode))
	if err != nil {
		return nil, apperr.Unavailable("matchmaking unavailable", err)
	}
	for _, raw := range members {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.PlayerID != playerID {
			continue
		}
		if _, err := q.store.RemoveSorted(ctx, queueKey(mode), raw); err != nil {
			return nil, apperr.Unavailable("matchmaking unavailable", err)
		}
		return &entry, nil
	}
	return nil, nil
}

// FindMatch scans the mode queue oldest-first for an opponent. On success the
// opponent becomes host of a freshly created room and the caller is seated as
// the second player under playerName (falling back to the name on the caller's
// own queue entry); both queue entries and back-references are consumed.
//
// Opponent consumption is a single conditional removal, so when two workers
// race for the same entry at most one wins; the loser falls through to the
// next candidate or reports "no match" and the client retries on its next
// poll. If room creation fails after the opponent was consumed, the opponent
// entry is restored best-effort so nobody silently vanishes from the queue.
func (q *Queue) FindMatch(ctx context.Context, playerID, playerName, mode, difficulty string) (*MatchResult, error) {
	members, err := q.store.RangeSorted(ctx, queueKey(mode))
	if err != nil {
		return nil, apperr.Unavailable("matchmaking unavailable", err)
	}

	selfPos := 0
	for i, raw := range members {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.logger.WithField("mode", mode).Warnf("dropping malformed queue entry: %v", err)
			continue
		}
		if entry.PlayerID == playerID {
			if selfPos == 0 {
				selfPos = i + 1
				if playerName == "" {
					playerName = entry.PlayerName
				}
			}
			continue
		}

		consumed, err := q.store.RemoveSorted(ctx, queueKey(mode), raw)
		if err != nil {
			return nil, apperr.Unavailable("matchmaking unavailable", err)
		}
		if !consumed {
			// Another worker booked this opponent first.
			continue
		}
		if err := q.store.Delete(ctx, inQueueKey(entry.PlayerID)); err != nil {
			q.logger.Warnf("failed to clear opponent back-reference: %v", err)
		}

		// Consume our own entry too, if we had one; it carries the caller's
		// registered name when the poll itself did not.
		selfEntry, err := q.removeFromMode(ctx, playerID, mode)
		if err != nil {
			q.requeue(ctx, mode, raw, &entry)
			return nil, err
		}
		if playerName == "" && selfEntry != nil {
			playerName = selfEntry.PlayerName
		}
		if playerName == "" {
			playerName = "Player"
		}
		if err := q.store.Delete(ctx, inQueueKey(playerID)); err != nil {
			q.logger.Warnf("failed to clear own back-reference: %v", err)
		}

		r, err := q.rooms.CreateRoom(ctx, entry.PlayerID, entry.PlayerName, mode, difficulty)
		if err != nil {
			q.requeue(ctx, mode, raw, &entry)
			return nil, err
		}
		if _, err := q.rooms.JoinRoom(ctx, r.Code, playerID, playerName); err != nil {
			q.requeue(ctx, mode, raw, &entry)
			return nil, err
		}

		q.logger.WithFields(log.Fields{
			"room": r.Code, "mode": mode,
			"host": entry.PlayerID, "guest": playerID,
		}).Info("match found")
		opponent := entry
		return &MatchResult{Matched: true, RoomCode: r.Code, Opponent: &opponent, IsHost: false}, nil
	}

	return &MatchResult{Matched: false, QueuePosition: selfPos}, nil
}

// requeue puts a consumed opponent back at their original position after a
// failed match assembly. Best-effort: an error here just gets logged, the
// opponent's own polling will re-enqueue them once the back-reference lapses.
func (q *Queue) requeue(ctx context.Context, mode, raw string, entry *Entry) {
	if err := q.store.AddSorted(ctx, queueKey(mode), raw, scoreFor(entry.JoinedAt)); err != nil {
		q.logger.Warnf("failed to restore opponent %s to %s queue: %v", entry.PlayerID, mode, err)
		return
	}
	if err := q.store.Set(ctx, inQueueKey(entry.PlayerID), mode, QueueTTL); err != nil {
		q.logger.Warnf("failed to restore opponent back-reference: %v", err)
	}
}
