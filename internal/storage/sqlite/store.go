// Package sqlite implements storage.Repository over a SQLite database in
// WAL mode, following the same open/pragma sequence the ployz project
// uses for its local embedded store: journal_mode=WAL for crash safety,
// busy_timeout so concurrent writers back off instead of failing outright.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"minesweeper-server/internal/storage"

	sqlitedriver "modernc.org/sqlite"
)

const (
	busyTimeoutMs  = 5000
	maxTransientRetries = 3
	retryBackoff   = 20 * time.Millisecond
)

// SQLite result codes relevant to failure classification. Named here
// instead of importing modernc.org/sqlite/lib to keep the dependency
// surface to the single driver package; the numbers are the stable
// upstream SQLite result codes.
const (
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteConstraint = 19
)

// Store implements storage.Repository backed by modernc.org/sqlite, the
// pure-Go (no cgo) SQLite driver used throughout the example corpus.
type Store struct {
	db *sql.DB
}

// Open creates the database file's parent directory if needed, opens the
// store, and applies the WAL + busy-timeout pragmas before creating the
// schema described in SPEC_FULL.md §4.B.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA busy_timeout = %d`, busyTimeoutMs)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS map_state (
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	revealed INTEGER NOT NULL,
	is_mine INTEGER NOT NULL,
	adjacent_mines INTEGER,
	flag_state INTEGER NOT NULL,
	PRIMARY KEY (x, y)
);
CREATE TABLE IF NOT EXISTS players (
	player_id TEXT PRIMARY KEY,
	score INTEGER NOT NULL,
	last_seen TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate schema: %v", storage.ErrFatal, err)
	}
	return nil
}

// Ping verifies the underlying connection is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", storage.ErrFatal, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// classify maps a raw SQLite error to one of the repository's provenance
// sentinels, matching the teacher's errors.Is-based mapping style.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqliteBusy, sqliteLocked:
			return fmt.Errorf("%w: %v", storage.ErrTransient, err)
		case sqliteConstraint:
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %v", storage.ErrFatal, err)
	}
	return fmt.Errorf("%w: %v", storage.ErrFatal, err)
}

// withRetry retries fn a bounded number of times while it keeps failing
// with ErrTransient, matching the "retry the single operation a bounded
// number of times" rule in the error handling design.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxTransientRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, storage.ErrTransient) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
	return lastErr
}
