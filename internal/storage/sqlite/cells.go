package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minesweeper-server/internal/storage"
)

// GetCell returns the persisted record for (x, y), or ok=false if no row
// exists (default hidden, unflagged).
func (s *Store) GetCell(ctx context.Context, x, y int) (storage.Cell, bool, error) {
	var cell storage.Cell
	err := withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT x, y, revealed, is_mine, adjacent_mines, flag_state FROM map_state WHERE x = ? AND y = ?`,
			x, y)
		if scanErr := scanCell(row, &cell); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return scanErr
			}
			return classify(scanErr)
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Cell{}, false, nil
	}
	if err != nil {
		return storage.Cell{}, false, err
	}
	return cell, true, nil
}

// GetCellsInRegion returns every non-default cell whose coordinates
// satisfy the wrap-aware interval predicate for the given bounds, per the
// region query semantics: x BETWEEN xMin AND xMax when xMin <= xMax, else
// (x >= xMin OR x <= xMax); mirrored for y, the two conjoined.
func (s *Store) GetCellsInRegion(ctx context.Context, xMin, xMax, yMin, yMax int) ([]storage.Cell, error) {
	xPred, xArgs := intervalPredicate("x", xMin, xMax)
	yPred, yArgs := intervalPredicate("y", yMin, yMax)

	query := fmt.Sprintf(
		`SELECT x, y, revealed, is_mine, adjacent_mines, flag_state FROM map_state WHERE (%s) AND (%s)`,
		xPred, yPred)
	args := append(xArgs, yArgs...)

	var cells []storage.Cell
	err := withRetry(ctx, func() error {
		cells = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return classify(err)
		}
		defer rows.Close()
		for rows.Next() {
			var c storage.Cell
			if err := scanCell(rows, &c); err != nil {
				return classify(err)
			}
			cells = append(cells, c)
		}
		if err := rows.Err(); err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cells, nil
}

// UpsertRevealed writes revealed=true, flagged=false, isMine, and
// adjacentMines (NULL when isMine), overriding any prior record.
func (s *Store) UpsertRevealed(ctx context.Context, x, y int, isMine bool, adjacentMines int) error {
	var adjacent sql.NullInt64
	if !isMine {
		adjacent = sql.NullInt64{Int64: int64(adjacentMines), Valid: true}
	}

	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO map_state (x, y, revealed, is_mine, adjacent_mines, flag_state)
			VALUES (?, ?, 1, ?, ?, 0)
			ON CONFLICT (x, y) DO UPDATE SET
				revealed = 1, is_mine = excluded.is_mine,
				adjacent_mines = excluded.adjacent_mines, flag_state = 0
		`, x, y, boolToInt(isMine), adjacent)
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

// SetFlag applies the flag toggle rules from the data model: setting
// flagged=true only inserts when no revealed record exists for (x, y);
// setting flagged=false only deletes the record when it is unrevealed.
func (s *Store) SetFlag(ctx context.Context, x, y int, flagged bool) error {
	return withRetry(ctx, func() error {
		if flagged {
			res, err := s.db.ExecContext(ctx, `
				INSERT INTO map_state (x, y, revealed, is_mine, adjacent_mines, flag_state)
				VALUES (?, ?, 0, 0, NULL, 1)
				ON CONFLICT (x, y) DO UPDATE SET flag_state = 1
				WHERE map_state.revealed = 0
			`, x, y)
			if err != nil {
				return classify(err)
			}
			_, err = res.RowsAffected()
			return classify(err)
		}

		_, err := s.db.ExecContext(ctx,
			`DELETE FROM map_state WHERE x = ? AND y = ? AND revealed = 0`, x, y)
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

func scanCell(row interface{ Scan(dest ...any) error }, c *storage.Cell) error {
	var revealed, isMine, flagged int
	var adjacent sql.NullInt64
	if err := row.Scan(&c.X, &c.Y, &revealed, &isMine, &adjacent, &flagged); err != nil {
		return err
	}
	c.Revealed = revealed != 0
	c.IsMine = isMine != 0
	c.Flagged = flagged != 0
	c.HasAdjacent = adjacent.Valid
	if adjacent.Valid {
		c.AdjacentMines = int(adjacent.Int64)
	}
	return nil
}

// intervalPredicate builds the wrap-aware SQL fragment and its bind args
// for one axis.
func intervalPredicate(col string, lo, hi int) (string, []any) {
	if lo <= hi {
		return fmt.Sprintf("%s BETWEEN ? AND ?", col), []any{lo, hi}
	}
	return fmt.Sprintf("(%s >= ? OR %s <= ?)", col, col), []any{lo, hi}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
