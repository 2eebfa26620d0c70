package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"minesweeper-server/internal/storage"
)

// FindOrCreatePlayer is idempotent: it inserts a fresh zero-score record
// on first sight and refreshes last_seen either way, returning the
// current score.
func (s *Store) FindOrCreatePlayer(ctx context.Context, id string) (storage.Player, error) {
	now := time.Now().UTC()
	var player storage.Player

	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO players (player_id, score, last_seen) VALUES (?, 0, ?)
			ON CONFLICT (player_id) DO UPDATE SET last_seen = excluded.last_seen
		`, id, now.Format(time.RFC3339Nano))
		if err != nil {
			return classify(err)
		}

		row := s.db.QueryRowContext(ctx,
			`SELECT player_id, score, last_seen FROM players WHERE player_id = ?`, id)
		if scanErr := scanPlayer(row, &player); scanErr != nil {
			return classify(scanErr)
		}
		return nil
	})
	if err != nil {
		return storage.Player{}, err
	}
	return player, nil
}

// AddToPlayerScore applies delta atomically via a single UPDATE ...
// RETURNING statement and returns the resulting total: the authoritative
// new score, never a client-reconstructed value (resolves the cached-score
// drift open question in SPEC_FULL.md §9).
func (s *Store) AddToPlayerScore(ctx context.Context, id string, delta int) (int, error) {
	var newScore int
	err := withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			UPDATE players SET score = score + ? WHERE player_id = ? RETURNING score
		`, delta, id)
		if scanErr := row.Scan(&newScore); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return classify(errNoSuchPlayer(id))
			}
			return classify(scanErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newScore, nil
}

// TouchPlayer refreshes last_seen without changing score.
func (s *Store) TouchPlayer(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE players SET last_seen = ? WHERE player_id = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), id)
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

func scanPlayer(row *sql.Row, p *storage.Player) error {
	var lastSeen string
	if err := row.Scan(&p.ID, &p.Score, &lastSeen); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return err
	}
	p.LastSeen = t
	return nil
}

type errNoSuchPlayer string

func (e errNoSuchPlayer) Error() string {
	return "no such player: " + string(e)
}
