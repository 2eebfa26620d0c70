// Package lifecycle handles the two edges of a connection's life: the
// initial handshake that hands a freshly accepted session its viewport
// snapshot, and the teardown that announces a departure to whoever was
// watching. It depends on the broadcaster only through a small injected
// function value, breaking what would otherwise be an import cycle
// between session registration and region broadcast.
package lifecycle

import (
	"context"
	"fmt"

	"minesweeper-server/internal/protocol"
	"minesweeper-server/internal/region"
	"minesweeper-server/internal/session"
	"minesweeper-server/internal/storage"
)

// BroadcastFunc matches broadcast.Broadcaster.Send's signature without
// importing the broadcast package.
type BroadcastFunc func(ctx context.Context, reg region.Region, msgType string, payload any, excludePlayerID string) error

// Registry is the slice of session.Registry lifecycle needs.
type Registry interface {
	Add(ctx context.Context, handle session.Handle) (*session.Session, error)
	Remove(ctx context.Context, handle session.Handle) (playerID string, ok bool)
	SessionsInRegion(reg region.Region, exclude string) []session.Projection
}

// Repository is the slice of storage.Repository lifecycle needs.
type Repository interface {
	GetCellsInRegion(ctx context.Context, xMin, xMax, yMin, yMax int) ([]storage.Cell, error)
}

// Handlers wires the registry, repository, and broadcaster together for
// the connect/disconnect sequences in spec.md §4.G.
type Handlers struct {
	registry  Registry
	repo      Repository
	broadcast BroadcastFunc
	w, h      int
}

// New builds a Handlers over a w x h toroidal world.
func New(registry Registry, repo Repository, broadcast BroadcastFunc, w, h int) *Handlers {
	return &Handlers{registry: registry, repo: repo, broadcast: broadcast, w: w, h: h}
}

// Connect registers a newly accepted transport handle, assembles its
// initial viewport snapshot, and announces it to the region.
func (h *Handlers) Connect(ctx context.Context, handle session.Handle) (*protocol.InitialState, error) {
	sess, err := h.registry.Add(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: connect: %w", err)
	}

	x, y := sess.Cursor()
	reg := region.Centered(x, y, region.ViewportRadiusX, region.ViewportRadiusY, h.w, h.h)

	cells, err := h.repo.GetCellsInRegion(ctx, reg.XMin, reg.XMax, reg.YMin, reg.YMax)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: connect: snapshot: %w", err)
	}

	players := h.registry.SessionsInRegion(reg, sess.PlayerID)
	playerRefs := make([]protocol.PlayerRef, 0, len(players))
	for _, p := range players {
		playerRefs = append(playerRefs, protocol.PlayerRef{ID: p.PlayerID, X: p.X, Y: p.Y})
	}

	initial := &protocol.InitialState{
		PlayerID: sess.PlayerID,
		Score:    sess.Score(),
		MapChunk: protocol.MapChunk{Cells: projectCells(cells)},
		Players:  playerRefs,
		Self:     protocol.SelfPosition{X: x, Y: y},
	}

	if err := h.broadcast(ctx, reg, protocol.TypePlayerJoined,
		protocol.PlayerJoined{ID: sess.PlayerID, X: x, Y: y}, sess.PlayerID); err != nil {
		return nil, fmt.Errorf("lifecycle: connect: broadcast join: %w", err)
	}

	return initial, nil
}

// Disconnect removes the session bound to handle and announces its
// departure centred on its last known cursor.
func (h *Handlers) Disconnect(ctx context.Context, handle session.Handle, lastX, lastY int) error {
	playerID, ok := h.registry.Remove(ctx, handle)
	if !ok {
		return nil
	}

	reg := region.Centered(lastX, lastY, region.ViewportRadiusX, region.ViewportRadiusY, h.w, h.h)
	if err := h.broadcast(ctx, reg, protocol.TypePlayerLeft, protocol.PlayerLeft{ID: playerID}, playerID); err != nil {
		return fmt.Errorf("lifecycle: disconnect: broadcast leave: %w", err)
	}
	return nil
}

func projectCells(cells []storage.Cell) []protocol.Cell {
	out := make([]protocol.Cell, 0, len(cells))
	for _, c := range cells {
		out = append(out, projectCell(c))
	}
	return out
}

func projectCell(c storage.Cell) protocol.Cell {
	switch {
	case c.Revealed && c.IsMine:
		return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellMine, Value: protocol.IntPtr(-1)}
	case c.Revealed:
		return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellRevealed, Value: protocol.IntPtr(c.AdjacentMines)}
	case c.Flagged:
		return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellFlagged, Value: nil}
	default:
		return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellHidden, Value: nil}
	}
}
