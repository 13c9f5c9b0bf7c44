// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jetarena/jetarena/internal/room"
)

// RecordMatchResult persists the outcome of one finished room: an upserted
// match row keyed by room code and start time, plus one result row per seated
// player. No-op when persistence is disabled.
func RecordMatchResult(ctx context.Context, r *room.Room) error {
	if DB == nil {
		return nil
	}
	if r == nil || r.StartedAt == nil {
		return fmt.Errorf("match never started")
	}

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertMatch := `
			INSERT INTO matches (room_code, mode, difficulty, started_at, ended_at, winner_id)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
			ON CONFLICT (room_code, started_at)
			DO UPDATE SET ended_at = $5, winner_id = NULLIF($6, '')
		`
		if _, e := tx.Exec(ctx, upsertMatch, r.Code, r.Mode, r.Difficulty, r.StartedAt, r.EndedAt, r.WinnerID); e != nil {
			return e
		}

		for _, p := range r.Players {
			q := `
				INSERT INTO match_results (room_code, started_at, player_id, player_name, slot, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (room_code, started_at, player_id)
				DO UPDATE SET did_win = $6
			`
			didWin := r.WinnerID != "" && p.ID == r.WinnerID
			if _, e := tx.Exec(ctx, q, r.Code, r.StartedAt, p.ID, p.Name, p.Slot, didWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match results: %w", err)
	}
	return nil
}

// RecordVictory bumps the winner's lifetime tally. No-op when persistence is
// disabled or the match had no winner.
func RecordVictory(ctx context.Context, playerID, playerName string) error {
	if DB == nil || playerID == "" {
		return nil
	}
	q := `
		INSERT INTO victories (player_id, player_name, wins)
		VALUES ($1, $2, 1)
		ON CONFLICT (player_id)
		DO UPDATE SET wins = victories.wins + 1, player_name = $2
	`
	if _, err := DB.Exec(ctx, q, playerID, playerName); err != nil {
		return fmt.Errorf("upsert victory: %w", err)
	}
	return nil
}
