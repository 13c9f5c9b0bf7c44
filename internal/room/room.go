// internal/room/room.go

// Package room owns the authoritative match-room lifecycle: creation with a
// shareable code, join/leave with host promotion, ready state and the
// waiting -> playing -> finished state machine. All state lives in the
// ephemeral store; rooms disappear when their lease lapses.
package room

import (
	"encoding/json"
	"fmt"
	"time"
)

// Game modes.
const (
	ModeCoop   = "coop"
	ModeVersus = "versus"
)

// Room statuses. A room never moves backwards: waiting -> playing -> finished.
const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

const (
	// CodeLength is the length of a shareable room code.
	CodeLength = 6
	// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// maxCodeAttempts bounds collision retries during room creation.
	maxCodeAttempts = 10
	// MaxPlayers is the roster cap. Rooms are strictly head-to-head or two-player co-op.
	MaxPlayers = 2

	// WaitingTTL is the idle lease on a room in the lobby phase.
	WaitingTTL = 5 * time.Minute
	// PlayingTTL extends the lease 4x while a match is running.
	PlayingTTL = 4 * WaitingTTL
	// FinishedTTL collapses the lease once a match ends so finished rooms
	// clean themselves up quickly.
	FinishedTTL = time.Minute
)

// ValidMode reports whether mode is a recognized game mode.
func ValidMode(mode string) bool {
	return mode == ModeCoop || mode == ModeVersus
}

// Player is one seated roster entry. Slot is 1-based and preserves seating
// order, which doubles as the host-promotion order when the host leaves.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Slot  int    `json:"slot"`
}

// Room is one match container.
type Room struct {
	Code       string     `json:"code"`
	Mode       string     `json:"mode"`
	Difficulty string     `json:"difficulty"`
	HostID     string     `json:"host_id"`
	HostName   string     `json:"host_name"`
	Status     string     `json:"status"`
	Players    []Player   `json:"players"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	WinnerID   string     `json:"winner_id,omitempty"`
}

// PlayerIndex returns the roster index of playerID, or -1.
func (r *Room) PlayerIndex(playerID string) int {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// toFields flattens the room into a store hash. The roster is carried as a
// single JSON field so its ordering survives the round trip.
func (r *Room) toFields() (map[string]string, error) {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return nil, fmt.Errorf("marshal roster: %w", err)
	}
	fields := map[string]string{
		"code":       r.Code,
		"mode":       r.Mode,
		"difficulty": r.Difficulty,
		"host_id":    r.HostID,
		"host_name":  r.HostName,
		"status":     r.Status,
		"players":    string(players),
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.StartedAt != nil {
		fields["started_at"] = r.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.EndedAt != nil {
		fields["ended_at"] = r.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.WinnerID != "" {
		fields["winner_id"] = r.WinnerID
	}
	return fields, nil
}

func roomFromFields(fields map[string]string) (*Room, error) {
	r := &Room{
		Code:       fields["code"],
		Mode:       fields["mode"],
		Difficulty: fields["difficulty"],
		HostID:     fields["host_id"],
		HostName:   fields["host_name"],
		Status:     fields["status"],
		WinnerID:   fields["winner_id"],
	}
	if raw := fields["players"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Players); err != nil {
			return nil, fmt.Errorf("unmarshal roster: %w", err)
		}
	}
	if raw := fields["created_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		r.CreatedAt = t
	}
	if raw := fields["started_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			r.StartedAt = &t
		}
	}
	if raw := fields["ended_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			r.EndedAt = &t
		}
	}
	return r, nil
}
