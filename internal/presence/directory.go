// internal/presence/directory.go

// Package presence tracks ephemeral per-player live state: the score/status
// record shown in the live player directory, spectator fan-out metadata, and
// short-lived game-state snapshots for late joiners. Nothing here is
// authoritative match state; every record is a lease that lapses unless the
// owning client keeps writing. A crashed client simply disappears after the
// TTL, indistinguishable from a clean exit. That is by contract, not a bug.
package presence

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/store"
)

const (
	playerKeyPrefix     = "player:"
	gameStateKeyPrefix  = "gamestate:"
	matchStateKeyPrefix = "mp_state:"
	spectatorKeyPrefix  = "spectators:"
	newPlayerKeyPrefix  = "newplayer:"
	commentKeyPrefix    = "comments:"
	bossDefeatKeyPrefix = "bossdefeats:"

	// PlayerTTL is the presence lease. Absence of a refresh within this window
	// is the sole liveness signal; there is no explicit heartbeat protocol.
	PlayerTTL = 30 * time.Second
	// GameStateTTL covers per-player snapshots read by spectators.
	GameStateTTL = 5 * time.Second
	// MatchStateTTL covers the room-keyed "last known state" fallback.
	MatchStateTTL = 10 * time.Second
	// NewPlayerTTL is the just-joined highlight window.
	NewPlayerTTL = 10 * time.Second
	// SpectatorTTL expires watcher sets that stop being refreshed.
	SpectatorTTL = 30 * time.Second
	// CommentTTL and maxComments bound the spectator comment feed.
	CommentTTL  = 5 * time.Minute
	maxComments = 50
	// BossDefeatTTL keeps the defeat highlight around for a while.
	BossDefeatTTL = 5 * time.Minute
)

// Record is a schema-light presence payload. Values round-trip through JSON;
// the directory does not interpret them beyond the score used for ordering.
type Record map[string]interface{}

// Directory is the live player directory over the shared store.
type Directory struct {
	store store.Store
}

// NewDirectory builds a Directory over the given store.
func NewDirectory(s store.Store) *Directory {
	return &Directory{store: s}
}

func playerKey(id string) string { return playerKeyPrefix + id }

// encodeFields mirrors the wire representation: every value is stored as its
// JSON encoding so structured fields survive the hash round trip.
func encodeFields(fields Record) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = string(raw)
	}
	return out
}

func decodeFields(fields map[string]string) Record {
	out := make(Record, len(fields))
	for k, v := range fields {
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			out[k] = parsed
		} else {
			out[k] = v
		}
	}
	return out
}

// SetPlayer writes the player's presence record and starts (or renews) its
// lease. Existing fields not present in the write are preserved.
func (d *Directory) SetPlayer(ctx context.Context, id string, fields Record) error {
	encoded := encodeFields(fields)
	ok, err := d.store.MergeHash(ctx, playerKey(id), encoded, PlayerTTL)
	if err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	if !ok {
		if err := d.store.SetHash(ctx, playerKey(id), encoded, PlayerTTL); err != nil {
			return apperr.Unavailable("presence unavailable", err)
		}
	}
	return nil
}

// UpdatePlayer merge-writes partial fields and renews the lease. Returns false
// if the record has already expired: an update must not resurrect a dead player.
func (d *Directory) UpdatePlayer(ctx context.Context, id string, fields Record) (bool, error) {
	ok, err := d.store.MergeHash(ctx, playerKey(id), encodeFields(fields), PlayerTTL)
	if err != nil {
		return false, apperr.Unavailable("presence unavailable", err)
	}
	return ok, nil
}

// GetPlayer fetches one presence record.
func (d *Directory) GetPlayer(ctx context.Context, id string) (Record, bool, error) {
	fields, ok, err := d.store.GetHash(ctx, playerKey(id))
	if err != nil {
		return nil, false, apperr.Unavailable("presence unavailable", err)
	}
	if !ok {
		return nil, false, nil
	}
	return decodeFields(fields), true, nil
}

// ListPlayers scans the whole directory and returns records sorted by score
// descending. This is O(n) over live players; fine for the tens-to-hundreds
// this service targets, and not meant to scale past that without a secondary
// sorted index.
func (d *Directory) ListPlayers(ctx context.Context) ([]Record, error) {
	keys, err := d.store.ScanKeys(ctx, playerKeyPrefix)
	if err != nil {
		return nil, apperr.Unavailable("presence unavailable", err)
	}
	players := make([]Record, 0, len(keys))
	for _, key := range keys {
		id := key[len(playerKeyPrefix):]
		rec, ok, err := d.GetPlayer(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // lease lapsed between scan and read
		}
		rec["id"] = id
		players = append(players, rec)
	}
	sort.SliceStable(players, func(i, j int) bool {
		return scoreOf(players[i]) > scoreOf(players[j])
	})
	return players, nil
}

func scoreOf(rec Record) float64 {
	switch v := rec["score"].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// DeletePlayer removes a presence record immediately (explicit leave).
func (d *Directory) DeletePlayer(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, playerKey(id)); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// SetPlayerAction records the player's last visible action for the directory view.
func (d *Directory) SetPlayerAction(ctx context.Context, id, action, emoji string) (bool, error) {
	return d.UpdatePlayer(ctx, id, Record{
		"lastAction":      action,
		"lastActionEmoji": emoji,
		"lastActionTime":  time.Now().UTC().Format(time.RFC3339),
	})
}

// MarkNew flags a player as just-joined for the UI highlight window.
func (d *Directory) MarkNew(ctx context.Context, id string) error {
	if err := d.store.Set(ctx, newPlayerKeyPrefix+id, "1", NewPlayerTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// IsNew reports whether the player is still inside the highlight window.
func (d *Directory) IsNew(ctx context.Context, id string) (bool, error) {
	_, ok, err := d.store.Get(ctx, newPlayerKeyPrefix+id)
	if err != nil {
		return false, apperr.Unavailable("presence unavailable", err)
	}
	return ok, nil
}

// AddSpectator registers a watcher on a player and renews the watcher set lease.
func (d *Directory) AddSpectator(ctx context.Context, targetID, spectatorID string) error {
	if err := d.store.AddToSet(ctx, spectatorKeyPrefix+targetID, spectatorID, SpectatorTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// RemoveSpectator drops a watcher.
func (d *Directory) RemoveSpectator(ctx context.Context, targetID, spectatorID string) error {
	if err := d.store.RemoveFromSet(ctx, spectatorKeyPrefix+targetID, spectatorID); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// SpectatorCount returns how many watchers a player currently has.
func (d *Directory) SpectatorCount(ctx context.Context, id string) (int, error) {
	n, err := d.store.SetSize(ctx, spectatorKeyPrefix+id)
	if err != nil {
		return 0, apperr.Unavailable("presence unavailable", err)
	}
	return n, nil
}

// SetGameState stores a player's opaque game-state snapshot for spectators.
func (d *Directory) SetGameState(ctx context.Context, playerID string, state json.RawMessage) error {
	if err := d.store.Set(ctx, gameStateKeyPrefix+playerID, string(state), GameStateTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// GetGameState fetches a player's latest snapshot, if still live.
func (d *Directory) GetGameState(ctx context.Context, playerID string) (json.RawMessage, bool, error) {
	raw, ok, err := d.store.Get(ctx, gameStateKeyPrefix+playerID)
	if err != nil {
		return nil, false, apperr.Unavailable("presence unavailable", err)
	}
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

// DeleteGameState removes a player's snapshot.
func (d *Directory) DeleteGameState(ctx context.Context, playerID string) error {
	if err := d.store.Delete(ctx, gameStateKeyPrefix+playerID); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// SetMatchState stores the room-keyed "last known state" fallback used by late
// joiners. Pure pass-through: the payload is never interpreted.
func (d *Directory) SetMatchState(ctx context.Context, roomCode string, state json.RawMessage) error {
	if err := d.store.Set(ctx, matchStateKeyPrefix+roomCode, string(state), MatchStateTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// GetMatchState fetches the room-keyed snapshot, if still live.
func (d *Directory) GetMatchState(ctx context.Context, roomCode string) (json.RawMessage, bool, error) {
	raw, ok, err := d.store.Get(ctx, matchStateKeyPrefix+roomCode)
	if err != nil {
		return nil, false, apperr.Unavailable("presence unavailable", err)
	}
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

// DeleteMatchState removes the room snapshot once a match ends.
func (d *Directory) DeleteMatchState(ctx context.Context, roomCode string) error {
	if err := d.store.Delete(ctx, matchStateKeyPrefix+roomCode); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// AddComment appends a spectator comment to the player's capped feed.
func (d *Directory) AddComment(ctx context.Context, playerID string, comment json.RawMessage) error {
	if err := d.store.PushList(ctx, commentKeyPrefix+playerID, string(comment), maxComments, CommentTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// GetComments returns up to limit recent comments, newest first.
func (d *Directory) GetComments(ctx context.Context, playerID string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > maxComments {
		limit = maxComments
	}
	raws, err := d.store.RangeList(ctx, commentKeyPrefix+playerID, limit)
	if err != nil {
		return nil, apperr.Unavailable("presence unavailable", err)
	}
	out := make([]json.RawMessage, len(raws))
	for i, r := range raws {
		out[i] = json.RawMessage(r)
	}
	return out, nil
}

// MarkBossDefeat records that a player took down the given boss level.
func (d *Directory) MarkBossDefeat(ctx context.Context, playerID string, bossLevel int) error {
	if err := d.store.AddToSet(ctx, bossDefeatKeyPrefix+playerID, strconv.Itoa(bossLevel), BossDefeatTTL); err != nil {
		return apperr.Unavailable("presence unavailable", err)
	}
	return nil
}

// BossDefeats lists the boss levels a player has defeated recently.
func (d *Directory) BossDefeats(ctx context.Context, playerID string) ([]int, error) {
	members, err := d.store.SetMembers(ctx, bossDefeatKeyPrefix+playerID)
	if err != nil {
		return nil, apperr.Unavailable("presence unavailable", err)
	}
	levels := make([]int, 0, len(members))
	for _, m := range members {
		if lvl, err := strconv.Atoi(m); err == nil {
			levels = append(levels, lvl)
		}
	}
	sort.Ints(levels)
	return levels, nil
}
