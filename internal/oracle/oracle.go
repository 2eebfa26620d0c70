// Package oracle implements the deterministic mine predicate. It is pure,
// stateless, and consults no external state: the same (seed, x, y) always
// yields the same answer, which is what lets the server omit storing the
// ~410k-cell mine field entirely.
package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"minesweeper-server/internal/region"
)

// Default world and mine-density constants from the data model.
const (
	Width   = 640
	Height  = 640
	Density = 0.15
)

// Oracle is a deterministic mine field derived from a seed and the map
// dimensions. The zero value is not usable; construct with New.
type Oracle struct {
	seed    string
	w, h    int
	density float64
}

// New builds an Oracle. Panics if w or h is non-positive — those are
// startup configuration errors, not runtime data.
func New(seed string, w, h int, density float64) *Oracle {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("oracle: invalid dimensions %dx%d", w, h))
	}
	return &Oracle{seed: seed, w: w, h: h, density: density}
}

// NewDefault builds an Oracle over the standard 640x640 world at the
// specified density of 0.15.
func NewDefault(seed string) *Oracle {
	return New(seed, Width, Height, Density)
}

// IsMine reports whether (x, y) is a mine. Coordinates outside
// [0, w) x [0, h) are logged and treated as non-mines; this function never
// panics on bad input.
func (o *Oracle) IsMine(x, y int) bool {
	if x < 0 || x >= o.w || y < 0 || y >= o.h {
		slog.Debug("oracle: out-of-range coordinate", "x", x, "y", y, "w", o.w, "h", o.h)
		return false
	}

	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%d,%d", o.seed, x, y)))
	h := binary.BigEndian.Uint64(digest[:8])

	// h / 2^64 < density, rearranged to avoid floating-point division of
	// the full 64-bit range: compare h against density * 2^64 directly.
	threshold := o.density * math.MaxUint64
	return float64(h) < threshold
}

// AdjacentMines sums IsMine over the eight wrap-aware neighbours of
// (x, y). Out-of-range input yields 0.
func (o *Oracle) AdjacentMines(x, y int) int {
	if x < 0 || x >= o.w || y < 0 || y >= o.h {
		slog.Debug("oracle: out-of-range coordinate", "x", x, "y", y, "w", o.w, "h", o.h)
		return 0
	}

	count := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := region.Wrap(x+dx, o.w)
			ny := region.Wrap(y+dy, o.h)
			if o.IsMine(nx, ny) {
				count++
			}
		}
	}
	return count
}

// Width reports the oracle's configured map width.
func (o *Oracle) Width() int { return o.w }

// Height reports the oracle's configured map height.
func (o *Oracle) Height() int { return o.h }
