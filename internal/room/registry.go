// internal/room/registry.go
package room

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jetarena/jetarena/internal/apperr"
	"github.com/jetarena/jetarena/internal/store"
)

const (
	roomKeyPrefix       = "room:"
	playerRoomKeyPrefix = "player_room:"
)

// errCodeTaken aborts a create transaction when the generated code collides.
var errCodeTaken = errors.New("room code already taken")

// Registry is the authoritative room lifecycle component. It holds no state of
// its own; every operation is a transaction against the shared store, so any
// number of request workers can share one Registry.
type Registry struct {
	store  store.Store
	logger *log.Logger
}

// NewRegistry builds a Registry over the given store.
func NewRegistry(s store.Store, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{store: s, logger: logger}
}

func roomKey(code string) string           { return roomKeyPrefix + code }
func playerRoomKey(playerID string) string { return playerRoomKeyPrefix + playerID }

func randomCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// wrapStoreErr passes taxonomy errors through untouched and converts raw store
// failures into Unavailable.
func wrapStoreErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Unavailable(msg, err)
}

// CreateRoom creates a waiting room hosted by hostID and returns it. Codes are
// drawn from the reduced alphabet and retried on collision up to a fixed bound.
func (reg *Registry) CreateRoom(ctx context.Context, hostID, hostName, mode, difficulty string) (*Room, error) {
	if !ValidMode(mode) {
		return nil, apperr.InvalidState("invalid mode")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		r := &Room{
			Code:       randomCode(),
			Mode:       mode,
			Difficulty: difficulty,
			HostID:     hostID,
			HostName:   hostName,
			Status:     StatusWaiting,
			Players:    []Player{{ID: hostID, Name: hostName, Slot: 1}},
			CreatedAt:  time.Now(),
		}
		fields, err := r.toFields()
		if err != nil {
			return nil, err
		}

		err = reg.store.UpdateHash(ctx, roomKey(r.Code), WaitingTTL, func(cur map[string]string) (map[string]string, error) {
			if cur != nil {
				return nil, errCodeTaken
			}
			return fields, nil
		})
		if errors.Is(err, errCodeTaken) {
			continue
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to create room")
		}

		if err := reg.store.Set(ctx, playerRoomKey(hostID), r.Code, WaitingTTL); err != nil {
			return nil, wrapStoreErr(err, "failed to record host room")
		}
		reg.logger.WithFields(log.Fields{"room": r.Code, "host": hostID, "mode": mode}).Info("room created")
		return r, nil
	}
	return nil, apperr.Unavailable("could not allocate a room code", errCodeTaken)
}

// GetRoom fetches a room by code. Absent rooms yield a NotFound error.
func (reg *Registry) GetRoom(ctx context.Context, code string) (*Room, error) {
	fields, ok, err := reg.store.GetHash(ctx, roomKey(code))
	if err != nil {
		return nil, wrapStoreErr(err, "failed to fetch room")
	}
	if !ok {
		return nil, apperr.NotFound("room not found")
	}
	return roomFromFields(fields)
}

// JoinRoom seats playerID in the room. Joining a room you are already seated
// in is a no-op that returns the current room. The roster check runs inside
// the store's check-and-write, so two racing joins cannot both take the last
// open slot.
func (reg *Registry) JoinRoom(ctx context.Context, code, playerID, playerName string) (*Room, error) {
	var joined *Room
	err := reg.store.UpdateHash(ctx, roomKey(code), WaitingTTL, func(cur map[string]string) (map[string]string, error) {
		if cur == nil {
			return nil, apperr.NotFound("room not found")
		}
		r, err := roomFromFields(cur)
		if err != nil {
			return nil, err
		}
		if r.PlayerIndex(playerID) >= 0 {
			joined = r
			return cur, nil
		}
		if r.Status != StatusWaiting {
			return nil, apperr.Conflict("game already started")
		}
		if len(r.Players) >= MaxPlayers {
			return nil, apperr.Conflict("room is full")
		}
		r.Players = append(r.Players, Player{ID: playerID, Name: playerName, Slot: len(r.Players) + 1})
		joined = r
		return r.toFields()
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to join room")
	}
	if err := reg.store.Set(ctx, playerRoomKey(playerID), code, WaitingTTL); err != nil {
		return nil, wrapStoreErr(err, "failed to record player room")
	}
	return joined, nil
}

// LeaveRoom unseats playerID. The room is deleted outright when the last
// player leaves; otherwise the earliest-seated remaining player inherits the
// host role. Returns false if the room does not exist.
func (reg *Registry) LeaveRoom(ctx context.Context, code, playerID string) (bool, error) {
	found := true
	removed := false
	err := reg.store.UpdateHash(ctx, roomKey(code), WaitingTTL, func(cur map[string]string) (map[string]string, error) {
		removed = false
		if cur == nil {
			found = false
			return nil, nil
		}
		r, err := roomFromFields(cur)
		if err != nil {
			return nil, err
		}
		idx := r.PlayerIndex(playerID)
		if idx < 0 {
			return cur, nil
		}
		removed = true
		r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
		if len(r.Players) == 0 {
			return nil, nil // last player out: delete the room
		}
		if r.HostID == playerID {
			r.HostID = r.Players[0].ID
			r.HostName = r.Players[0].Name
			reg.logger.WithFields(log.Fields{"room": code, "host": r.HostID}).Info("host left, promoted next player")
		}
		return r.toFields()
	})
	if err != nil {
		return false, wrapStoreErr(err, "failed to leave room")
	}
	// Only clear the back-reference when this room actually held the player;
	// leaving a room you are not in must not orphan your seat elsewhere.
	if removed {
		if err := reg.store.Delete(ctx, playerRoomKey(playerID)); err != nil {
			return found, wrapStoreErr(err, "failed to clear player room")
		}
	}
	return found, nil
}

// SetReady flips a seated player's ready flag and returns the updated room.
func (reg *Registry) SetReady(ctx context.Context, code, playerID string, ready bool) (*Room, error) {
	var updated *Room
	err := reg.store.UpdateHash(ctx, roomKey(code), WaitingTTL, func(cur map[string]string) (map[string]string, error) {
		if cur == nil {
			return nil, apperr.NotFound("room not found")
		}
		r, err := roomFromFields(cur)
		if err != nil {
			return nil, err
		}
		idx := r.PlayerIndex(playerID)
		if idx < 0 {
			return nil, apperr.NotFound("player not in room")
		}
		r.Players[idx].Ready = ready
		updated = r
		return r.toFields()
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to set ready state")
	}
	return updated, nil
}

// StartGame transitions the room to playing. It refuses, with no mutation,
// unless exactly MaxPlayers are seated and every one of them is ready. The
// room's lease is extended 4x for the duration of the match.
func (reg *Registry) StartGame(ctx context.Context, code string) (*Room, error) {
	var started *Room
	err := reg.store.UpdateHash(ctx, roomKey(code), PlayingTTL, func(cur map[string]string) (map[string]string, error) {
		if cur == nil {
			return nil, apperr.NotFound("room not found")
		}
		r, err := roomFromFields(cur)
		if err != nil {
			return nil, err
		}
		if r.Status != StatusWaiting {
			return nil, apperr.Conflict("game already started")
		}
		if len(r.Players) != MaxPlayers {
			return nil, apperr.InvalidState("cannot start: need 2 ready players")
		}
		for _, p := range r.Players {
			if !p.Ready {
				return nil, apperr.InvalidState("cannot start: need 2 ready players")
			}
		}
		now := time.Now()
		r.Status = StatusPlaying
		r.StartedAt = &now
		started = r
		return r.toFields()
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to start game")
	}
	reg.logger.WithField("room", code).Info("game started")
	return started, nil
}

// EndGame transitions the room to finished, optionally recording the winner,
// and collapses the lease to the cleanup window. Finished rooms never resume.
func (reg *Registry) EndGame(ctx context.Context, code, winnerID string) (*Room, error) {
	var ended *Room
	err := reg.store.UpdateHash(ctx, roomKey(code), FinishedTTL, func(cur map[string]string) (map[string]string, error) {
		if cur == nil {
			return nil, apperr.NotFound("room not found")
		}
		r, err := roomFromFields(cur)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusFinished {
			ended = r
			return cur, nil
		}
		now := time.Now()
		r.Status = StatusFinished
		r.EndedAt = &now
		if winnerID != "" {
			r.WinnerID = winnerID
		}
		ended = r
		return r.toFields()
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to end game")
	}
	reg.logger.WithFields(log.Fields{"room": code, "winner": winnerID}).Info("game ended")
	return ended, nil
}

// GetPlayerRoom resolves the player -> room back-reference, used to reconnect
// a client to its room after a reload and to answer "am I already matched"
// during matchmaking polling.
func (reg *Registry) GetPlayerRoom(ctx context.Context, playerID string) (string, bool, error) {
	code, ok, err := reg.store.Get(ctx, playerRoomKey(playerID))
	if err != nil {
		return "", false, wrapStoreErr(err, "failed to resolve player room")
	}
	return code, ok, nil
}
