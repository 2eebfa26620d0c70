package mines

import (
	"context"
	"testing"

	"minesweeper-server/internal/region"
)

const testW, testH = 640, 640

// fakeOracle is a deterministic, test-controlled mine field: every
// coordinate is safe except the ones listed in mines.
type fakeOracle struct {
	mines map[[2]int]bool
}

func newFakeOracle(mines ...[2]int) *fakeOracle {
	f := &fakeOracle{mines: make(map[[2]int]bool)}
	for _, m := range mines {
		f.mines[m] = true
	}
	return f
}

func (f *fakeOracle) IsMine(x, y int) bool {
	return f.mines[[2]int{region.Wrap(x, testW), region.Wrap(y, testH)}]
}

func (f *fakeOracle) AdjacentMines(x, y int) int {
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if f.IsMine(x+dx, y+dy) {
				n++
			}
		}
	}
	return n
}

func TestRevealMineAppliesPenaltyAndPersists(t *testing.T) {
	o := newFakeOracle([2]int{100, 100})
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)

	outcome, err := e.Reveal(context.Background(), "p1", 100, 100)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	hit, ok := outcome.(MineHit)
	if !ok {
		t.Fatalf("expected MineHit, got %#v", outcome)
	}
	if hit.ScoreDelta != MinePenalty || hit.StunMs != MineStunMs || hit.NewScore != MinePenalty {
		t.Fatalf("unexpected MineHit: %+v", hit)
	}

	cell, ok, err := repo.GetCell(context.Background(), 100, 100)
	if err != nil || !ok || !cell.IsMine || !cell.Revealed {
		t.Fatalf("expected persisted mine cell, got ok=%v cell=%+v err=%v", ok, cell, err)
	}
}

func TestRevealAlreadyRevealedIsIgnored(t *testing.T) {
	o := newFakeOracle()
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)
	ctx := context.Background()

	if _, err := e.Reveal(ctx, "p1", 5, 5); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	outcome, err := e.Reveal(ctx, "p1", 5, 5)
	if err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if _, ok := outcome.(RevealIgnored); !ok {
		t.Fatalf("expected RevealIgnored, got %#v", outcome)
	}
}

func TestRevealFlaggedIsIgnored(t *testing.T) {
	o := newFakeOracle()
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)
	ctx := context.Background()

	if _, err := e.ToggleFlag(ctx, "p1", 5, 5); err != nil {
		t.Fatalf("flag: %v", err)
	}
	outcome, err := e.Reveal(ctx, "p1", 5, 5)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, ok := outcome.(RevealIgnored); !ok {
		t.Fatalf("expected RevealIgnored on flagged cell, got %#v", outcome)
	}
}

func TestFloodFillOpensDiskAroundZeroAdjacency(t *testing.T) {
	// No mines anywhere near the origin: a reveal at (0,0) must flood
	// the whole local neighbourhood, including the wrapped (W-1,H-1).
	o := newFakeOracle()
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)

	outcome, err := e.Reveal(context.Background(), "p1", 0, 0)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	safe, ok := outcome.(Safe)
	if !ok {
		t.Fatalf("expected Safe, got %#v", outcome)
	}
	if len(safe.Cells) < 9 {
		t.Fatalf("expected flood to open at least 9 cells, got %d", len(safe.Cells))
	}
	if safe.ScoreDelta != len(safe.Cells) || safe.NewScore != len(safe.Cells) {
		t.Fatalf("score bookkeeping mismatch: %+v", safe)
	}

	foundWrapped := false
	for _, c := range safe.Cells {
		if c.X == testW-1 && c.Y == testH-1 {
			foundWrapped = true
		}
		if c.Adjacent != 0 {
			t.Fatalf("expected every flooded cell to have zero adjacency in an all-safe field, got %+v", c)
		}
	}
	if !foundWrapped {
		t.Fatal("expected flood from (0,0) to wrap and include (W-1,H-1)")
	}
}

func TestFloodFillStopsAtFlagBoundary(t *testing.T) {
	o := newFakeOracle()
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)
	ctx := context.Background()

	// Flag one of the eight neighbours of the zero-adjacency origin.
	if _, err := e.ToggleFlag(ctx, "p1", region.Wrap(-1, testW), region.Wrap(-1, testH)); err != nil {
		t.Fatalf("flag neighbour: %v", err)
	}

	outcome, err := e.Reveal(ctx, "p1", 0, 0)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	safe := outcome.(Safe)

	for _, c := range safe.Cells {
		if c.X == testW-1 && c.Y == testH-1 {
			t.Fatal("flood must not cross the flagged neighbour")
		}
	}

	cell, ok, err := repo.GetCell(ctx, testW-1, testH-1)
	if err != nil || !ok || !cell.Flagged || cell.Revealed {
		t.Fatalf("flagged cell must remain flagged and unrevealed: ok=%v cell=%+v err=%v", ok, cell, err)
	}
}

func TestFloodFillBoundedByAdjacency(t *testing.T) {
	// A ring of mines around (10,10) should stop the flood at the first
	// ring, since every neighbour of (10,10) itself has nonzero adjacency.
	o := newFakeOracle(
		[2]int{8, 8}, [2]int{8, 9}, [2]int{8, 10}, [2]int{8, 11}, [2]int{8, 12},
		[2]int{12, 8}, [2]int{12, 9}, [2]int{12, 10}, [2]int{12, 11}, [2]int{12, 12},
		[2]int{9, 8}, [2]int{10, 8}, [2]int{11, 8},
		[2]int{9, 12}, [2]int{10, 12}, [2]int{11, 12},
	)
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)

	outcome, err := e.Reveal(context.Background(), "p1", 10, 10)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	safe, ok := outcome.(Safe)
	if !ok {
		t.Fatalf("expected Safe, got %#v", outcome)
	}
	if len(safe.Cells) == 0 || len(safe.Cells) > testW*testH {
		t.Fatalf("flood fill result size out of bounds: %d", len(safe.Cells))
	}
}

func TestToggleFlagTwiceReturnsToDefault(t *testing.T) {
	o := newFakeOracle()
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)
	ctx := context.Background()

	first, err := e.ToggleFlag(ctx, "p1", 50, 50)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if _, ok := first.(Flagged); !ok {
		t.Fatalf("expected Flagged, got %#v", first)
	}
	if _, ok, _ := repo.GetCell(ctx, 50, 50); !ok {
		t.Fatal("expected a persisted flag record")
	}

	second, err := e.ToggleFlag(ctx, "p1", 50, 50)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if _, ok := second.(Unflagged); !ok {
		t.Fatalf("expected Unflagged, got %#v", second)
	}
	if _, ok, _ := repo.GetCell(ctx, 50, 50); ok {
		t.Fatal("expected record to be gone after clearing the only flag")
	}
}

func TestToggleFlagOnRevealedCellIsIgnored(t *testing.T) {
	o := newFakeOracle([2]int{20, 20})
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)
	ctx := context.Background()

	if _, err := e.Reveal(ctx, "p1", 20, 20); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	outcome, err := e.ToggleFlag(ctx, "p1", 20, 20)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, ok := outcome.(FlagIgnored); !ok {
		t.Fatalf("expected FlagIgnored on revealed cell, got %#v", outcome)
	}
}

func TestMineHitPersistsBeforeScoreDelta(t *testing.T) {
	// Can't observe write ordering directly through the interface, but we
	// can assert both effects are present after the call returns, which
	// is what every caller actually depends on.
	o := newFakeOracle([2]int{1, 1})
	repo := newFakeRepo()
	e := New(o, repo, testW, testH)

	if _, err := e.Reveal(context.Background(), "p1", 1, 1); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if repo.scores["p1"] != MinePenalty {
		t.Fatalf("expected score %d, got %d", MinePenalty, repo.scores["p1"])
	}
	cell, ok, _ := repo.GetCell(context.Background(), 1, 1)
	if !ok || !cell.IsMine {
		t.Fatal("expected mine cell to be persisted")
	}
}
