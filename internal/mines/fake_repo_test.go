package mines

import (
	"context"
	"sync"

	"minesweeper-server/internal/storage"
)

// fakeRepo is a minimal in-memory storage.Repository used to exercise the
// engine's algorithms without a real database.
type fakeRepo struct {
	mu      sync.Mutex
	cells   map[[2]int]storage.Cell
	scores  map[string]int
	delayed map[[2]int]bool // cells to report as already-revealed on GetCell, simulating a concurrent winner
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		cells:  make(map[[2]int]storage.Cell),
		scores: make(map[string]int),
	}
}

func (f *fakeRepo) GetCell(ctx context.Context, x, y int) (storage.Cell, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delayed[[2]int{x, y}] {
		return storage.Cell{X: x, Y: y, Revealed: true}, true, nil
	}
	c, ok := f.cells[[2]int{x, y}]
	return c, ok, nil
}

func (f *fakeRepo) GetCellsInRegion(ctx context.Context, xMin, xMax, yMin, yMax int) ([]storage.Cell, error) {
	return nil, nil
}

func (f *fakeRepo) UpsertRevealed(ctx context.Context, x, y int, isMine bool, adjacentMines int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[[2]int{x, y}] = storage.Cell{
		X: x, Y: y, Revealed: true, IsMine: isMine,
		AdjacentMines: adjacentMines, HasAdjacent: !isMine,
	}
	return nil
}

func (f *fakeRepo) SetFlag(ctx context.Context, x, y int, flagged bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int{x, y}
	existing, ok := f.cells[key]

	if flagged {
		if ok && existing.Revealed {
			return nil
		}
		f.cells[key] = storage.Cell{X: x, Y: y, Flagged: true}
		return nil
	}
	if ok && !existing.Revealed {
		delete(f.cells, key)
	}
	return nil
}

func (f *fakeRepo) FindOrCreatePlayer(ctx context.Context, id string) (storage.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.Player{ID: id, Score: f.scores[id]}, nil
}

func (f *fakeRepo) AddToPlayerScore(ctx context.Context, id string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[id] += delta
	return f.scores[id], nil
}

func (f *fakeRepo) TouchPlayer(ctx context.Context, id string) error { return nil }
func (f *fakeRepo) Ping(ctx context.Context) error                   { return nil }
func (f *fakeRepo) Close() error                                     { return nil }

var _ storage.Repository = (*fakeRepo)(nil)
