package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"minesweeper-server/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mines.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetCellAbsentByDefault(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetCell(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("GetCell: %v", err)
	}
	if ok {
		t.Fatal("expected absent cell to report ok=false")
	}
}

func TestUpsertRevealedRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRevealed(ctx, 10, 20, false, 3); err != nil {
		t.Fatalf("UpsertRevealed: %v", err)
	}

	cell, ok, err := s.GetCell(ctx, 10, 20)
	if err != nil || !ok {
		t.Fatalf("GetCell after upsert: ok=%v err=%v", ok, err)
	}
	if !cell.Revealed || cell.IsMine || !cell.HasAdjacent || cell.AdjacentMines != 3 {
		t.Fatalf("unexpected cell state: %+v", cell)
	}
}

func TestUpsertRevealedMineHasNoAdjacent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRevealed(ctx, 1, 1, true, 0); err != nil {
		t.Fatalf("UpsertRevealed: %v", err)
	}
	cell, ok, err := s.GetCell(ctx, 1, 1)
	if err != nil || !ok {
		t.Fatalf("GetCell: ok=%v err=%v", ok, err)
	}
	if !cell.IsMine || cell.HasAdjacent {
		t.Fatalf("mine cell should have no adjacency value: %+v", cell)
	}
}

func TestSetFlagThenClearDeletesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetFlag(ctx, 50, 50, true); err != nil {
		t.Fatalf("SetFlag true: %v", err)
	}
	cell, ok, err := s.GetCell(ctx, 50, 50)
	if err != nil || !ok || !cell.Flagged || cell.Revealed {
		t.Fatalf("expected flagged unrevealed cell: ok=%v cell=%+v err=%v", ok, cell, err)
	}

	if err := s.SetFlag(ctx, 50, 50, false); err != nil {
		t.Fatalf("SetFlag false: %v", err)
	}
	_, ok, err = s.GetCell(ctx, 50, 50)
	if err != nil {
		t.Fatalf("GetCell: %v", err)
	}
	if ok {
		t.Fatal("expected record to be deleted after clearing flag on unrevealed cell")
	}
}

func TestSetFlagNoOpOnRevealedCell(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRevealed(ctx, 7, 7, false, 2); err != nil {
		t.Fatalf("UpsertRevealed: %v", err)
	}
	if err := s.SetFlag(ctx, 7, 7, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	cell, ok, err := s.GetCell(ctx, 7, 7)
	if err != nil || !ok {
		t.Fatalf("GetCell: ok=%v err=%v", ok, err)
	}
	if cell.Flagged {
		t.Fatal("flag must not attach to a revealed cell")
	}
}

func TestGetCellsInRegionWrapsAtSeam(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRevealed(ctx, 1, 1, false, 0); err != nil {
		t.Fatalf("UpsertRevealed: %v", err)
	}
	if err := s.UpsertRevealed(ctx, 639, 639, false, 0); err != nil {
		t.Fatalf("UpsertRevealed: %v", err)
	}

	cells, err := s.GetCellsInRegion(ctx, 638, 2, 638, 2)
	if err != nil {
		t.Fatalf("GetCellsInRegion: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected both wrapped cells, got %d: %+v", len(cells), cells)
	}
}

func TestPlayerScoreIsAtomicAndReturnsTotal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreatePlayer(ctx, "p1"); err != nil {
		t.Fatalf("FindOrCreatePlayer: %v", err)
	}
	total, err := s.AddToPlayerScore(ctx, "p1", 5)
	if err != nil {
		t.Fatalf("AddToPlayerScore: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	total, err = s.AddToPlayerScore(ctx, "p1", -50)
	if err != nil {
		t.Fatalf("AddToPlayerScore: %v", err)
	}
	if total != -45 {
		t.Fatalf("expected total -45, got %d", total)
	}
}

func TestFindOrCreatePlayerIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreatePlayer(ctx, "p2")
	if err != nil {
		t.Fatalf("FindOrCreatePlayer: %v", err)
	}
	if _, err := s.AddToPlayerScore(ctx, "p2", 10); err != nil {
		t.Fatalf("AddToPlayerScore: %v", err)
	}
	second, err := s.FindOrCreatePlayer(ctx, "p2")
	if err != nil {
		t.Fatalf("FindOrCreatePlayer: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("expected stable player id across calls")
	}
	if second.Score != 10 {
		t.Fatalf("FindOrCreatePlayer must not reset score, got %d", second.Score)
	}
}

var _ storage.Repository = (*Store)(nil)
