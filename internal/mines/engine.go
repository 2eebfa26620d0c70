// Package mines implements the cell state engine: reveal (including
// flood fill), flag toggling, and the scoring rules layered on top of the
// map oracle and the persistence repository.
package mines

import (
	"context"
	"fmt"
	"log/slog"

	"minesweeper-server/internal/region"
	"minesweeper-server/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MinePenalty is the fixed score delta applied on a mine hit.
const MinePenalty = -50

// MineStunMs is the fixed stun duration communicated to the player who
// hit a mine.
const MineStunMs = 3000

// Oracle is the mine predicate the engine consults. oracle.Oracle
// satisfies this; tests substitute a deterministic fake.
type Oracle interface {
	IsMine(x, y int) bool
	AdjacentMines(x, y int) int
}

// Engine orchestrates the map oracle and the persistence repository to
// implement reveal and flag-toggle semantics.
type Engine struct {
	oracle Oracle
	repo   storage.Repository
	w, h   int

	tracer        trace.Tracer
	revealCounter metric.Int64Counter
	floodSize     metric.Int64Histogram
	mineHits      metric.Int64Counter
}

// New builds an Engine over the given oracle and repository for a w x h
// world.
func New(o Oracle, repo storage.Repository, w, h int) *Engine {
	meter := otel.Meter("minesweeper-server/mines")
	revealCounter, _ := meter.Int64Counter("mines.reveal.count")
	floodSize, _ := meter.Int64Histogram("mines.floodfill.size")
	mineHits, _ := meter.Int64Counter("mines.mine_hit.count")

	return &Engine{
		oracle:        o,
		repo:          repo,
		w:             w,
		h:             h,
		tracer:        otel.Tracer("minesweeper-server/mines"),
		revealCounter: revealCounter,
		floodSize:     floodSize,
		mineHits:      mineHits,
	}
}

// Reveal implements spec.md §4.D.1.
func (e *Engine) Reveal(ctx context.Context, playerID string, x, y int) (RevealOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "mines.reveal",
		trace.WithAttributes(
			attribute.Int("x", x), attribute.Int("y", y),
			attribute.String("player_id", playerID),
		))
	defer span.End()

	cell, ok, err := e.repo.GetCell(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("reveal: fetch cell: %w", err)
	}
	if ok && (cell.Revealed || cell.Flagged) {
		return RevealIgnored{}, nil
	}

	if e.oracle.IsMine(x, y) {
		return e.revealMine(ctx, playerID, x, y)
	}
	return e.floodReveal(ctx, playerID, x, y)
}

func (e *Engine) revealMine(ctx context.Context, playerID string, x, y int) (RevealOutcome, error) {
	if err := e.repo.UpsertRevealed(ctx, x, y, true, 0); err != nil {
		return nil, fmt.Errorf("reveal mine: persist: %w", err)
	}
	newScore, err := e.repo.AddToPlayerScore(ctx, playerID, MinePenalty)
	if err != nil {
		return nil, fmt.Errorf("reveal mine: score: %w", err)
	}

	e.mineHits.Add(ctx, 1)
	e.revealCounter.Add(ctx, 1)

	return MineHit{
		ScoreDelta: MinePenalty,
		StunMs:     MineStunMs,
		NewScore:   newScore,
		Cell:       RevealedCell{X: x, Y: y, Mine: true},
	}, nil
}

type coord struct{ x, y int }

// floodReveal runs the bounded flood fill described in spec.md §4.D.1:
// a zero-adjacency safe cell propagates reveal to its eight wrap-aware
// neighbours, stopping at any cell that another actor has already
// revealed or flagged.
func (e *Engine) floodReveal(ctx context.Context, playerID string, x, y int) (RevealOutcome, error) {
	queue := []coord{{x, y}}
	visited := map[coord]bool{{x, y}: true}
	var result []RevealedCell

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		peek, ok, err := e.repo.GetCell(ctx, cur.x, cur.y)
		if err != nil {
			return nil, fmt.Errorf("flood reveal: peek: %w", err)
		}
		if ok && (peek.Revealed || peek.Flagged) {
			continue // another actor touched this cell first; skip it
		}

		adjacent := e.oracle.AdjacentMines(cur.x, cur.y)
		result = append(result, RevealedCell{X: cur.x, Y: cur.y, Mine: false, Adjacent: adjacent})

		if adjacent != 0 {
			continue
		}

		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				n := coord{region.Wrap(cur.x+dx, e.w), region.Wrap(cur.y+dy, e.h)}
				if visited[n] {
					continue
				}

				nPeek, nOk, err := e.repo.GetCell(ctx, n.x, n.y)
				if err != nil {
					return nil, fmt.Errorf("flood reveal: neighbour peek: %w", err)
				}
				visited[n] = true // mark visited unconditionally after the peek

				if !(nOk && (nPeek.Revealed || nPeek.Flagged)) {
					queue = append(queue, n)
				}
			}
		}
	}

	if len(result) == 0 {
		// Lost the race for every cell in the frontier; nothing to do.
		slog.Debug("flood reveal: empty result, race lost", "x", x, "y", y, "player_id", playerID)
		return RevealIgnored{}, nil
	}

	for _, c := range result {
		if err := e.repo.UpsertRevealed(ctx, c.X, c.Y, false, c.Adjacent); err != nil {
			return nil, fmt.Errorf("flood reveal: persist (%d,%d): %w", c.X, c.Y, err)
		}
	}

	newScore, err := e.repo.AddToPlayerScore(ctx, playerID, len(result))
	if err != nil {
		return nil, fmt.Errorf("flood reveal: score: %w", err)
	}

	e.revealCounter.Add(ctx, int64(len(result)))
	e.floodSize.Record(ctx, int64(len(result)))

	return Safe{ScoreDelta: len(result), NewScore: newScore, Cells: result}, nil
}

// ToggleFlag implements spec.md §4.D.2.
func (e *Engine) ToggleFlag(ctx context.Context, playerID string, x, y int) (FlagOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "mines.flag",
		trace.WithAttributes(
			attribute.Int("x", x), attribute.Int("y", y),
			attribute.String("player_id", playerID),
		))
	defer span.End()

	cell, ok, err := e.repo.GetCell(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("toggle flag: fetch cell: %w", err)
	}
	if ok && cell.Revealed {
		return FlagIgnored{}, nil
	}

	if ok && cell.Flagged {
		if err := e.repo.SetFlag(ctx, x, y, false); err != nil {
			return nil, fmt.Errorf("toggle flag: clear: %w", err)
		}
		return Unflagged{X: x, Y: y}, nil
	}

	if err := e.repo.SetFlag(ctx, x, y, true); err != nil {
		return nil, fmt.Errorf("toggle flag: set: %w", err)
	}
	return Flagged{X: x, Y: y}, nil
}
