package sqlite

import (
	"context"
	"time"
)

// CellCounts summarizes map_state by the same projection the wire
// protocol exposes: revealed-safe, revealed-mine, and flagged. Hidden
// cells are never counted since they have no row.
type CellCounts struct {
	Revealed int
	Mines    int
	Flagged  int
}

// CellCounts aggregates the persisted cell table for the operator CLI.
// It is read-only and never consulted by the live engine.
func (s *Store) CellCounts(ctx context.Context) (CellCounts, error) {
	var c CellCounts
	err := withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE revealed = 1 AND is_mine = 0),
				COUNT(*) FILTER (WHERE revealed = 1 AND is_mine = 1),
				COUNT(*) FILTER (WHERE flag_state = 1)
			FROM map_state
		`)
		return classify(row.Scan(&c.Revealed, &c.Mines, &c.Flagged))
	})
	if err != nil {
		return CellCounts{}, err
	}
	return c, nil
}

// PlayerStanding is one row of the top-score leaderboard.
type PlayerStanding struct {
	ID       string
	Score    int
	LastSeen time.Time
}

// TopPlayers returns the limit highest-scoring players, descending.
func (s *Store) TopPlayers(ctx context.Context, limit int) ([]PlayerStanding, error) {
	var out []PlayerStanding
	err := withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT player_id, score, last_seen FROM players ORDER BY score DESC LIMIT ?`, limit)
		if err != nil {
			return classify(err)
		}
		defer rows.Close()
		for rows.Next() {
			var p PlayerStanding
			var lastSeen string
			if err := rows.Scan(&p.ID, &p.Score, &lastSeen); err != nil {
				return classify(err)
			}
			t, err := time.Parse(time.RFC3339Nano, lastSeen)
			if err != nil {
				return classify(err)
			}
			p.LastSeen = t
			out = append(out, p)
		}
		return classify(rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PlayerCount returns the total number of distinct players ever seen.
func (s *Store) PlayerCount(ctx context.Context) (int, error) {
	var n int
	err := withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`)
		return classify(row.Scan(&n))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
