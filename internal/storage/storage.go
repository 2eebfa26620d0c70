// Package storage abstracts durable cell and player state. It owns all
// durable state in the server; every other component holds only local
// data, per the shared-resource policy.
package storage

import (
	"context"
	"errors"
	"time"
)

// Cell is a persisted (non-default) cell record. A cell absent from the
// repository is equivalent to the zero value of Cell with neither
// Revealed nor Flagged set.
type Cell struct {
	X, Y          int
	Revealed      bool
	IsMine        bool
	AdjacentMines int  // meaningful only when Revealed && !IsMine
	HasAdjacent   bool // true iff AdjacentMines is meaningful
	Flagged       bool
}

// Player is the persisted player record.
type Player struct {
	ID       string
	Score    int
	LastSeen time.Time
}

// Sentinel errors classifying repository failures by provenance, per the
// error handling design: Transient (retry may help), Conflict (another
// writer won), Fatal (corruption or unrecoverable open failure).
var (
	ErrTransient = errors.New("storage: transient failure")
	ErrConflict  = errors.New("storage: write conflict")
	ErrFatal     = errors.New("storage: fatal failure")
)

// Repository is the persistence contract consulted by the cell state
// engine and the connection lifecycle handlers.
type Repository interface {
	// GetCell returns the record for (x, y), or ok=false if the cell is
	// absent (default hidden, unflagged).
	GetCell(ctx context.Context, x, y int) (cell Cell, ok bool, err error)

	// GetCellsInRegion returns every non-default cell whose coordinates
	// satisfy the wrap-aware interval predicate for the given bounds.
	GetCellsInRegion(ctx context.Context, xMin, xMax, yMin, yMax int) ([]Cell, error)

	// UpsertRevealed writes revealed=true, flagged=false, isMine, and
	// adjacentMines (ignored when isMine is true), overriding any prior
	// record for (x, y).
	UpsertRevealed(ctx context.Context, x, y int, isMine bool, adjacentMines int) error

	// SetFlag sets or clears the flag on (x, y) per the rules in the data
	// model: setting true only inserts when no revealed record exists;
	// setting false only deletes when the existing record is unrevealed.
	SetFlag(ctx context.Context, x, y int, flagged bool) error

	// FindOrCreatePlayer is idempotent: it creates the player record on
	// first sight and refreshes LastSeen either way.
	FindOrCreatePlayer(ctx context.Context, id string) (Player, error)

	// AddToPlayerScore atomically applies delta and returns the resulting
	// total — the authoritative new score, not a client-computed value.
	AddToPlayerScore(ctx context.Context, id string, delta int) (newScore int, err error)

	// TouchPlayer refreshes LastSeen without touching score.
	TouchPlayer(ctx context.Context, id string) error

	// Ping verifies the store is reachable; used at startup before the
	// server accepts connections.
	Ping(ctx context.Context) error

	// Close releases the underlying store handle.
	Close() error
}
