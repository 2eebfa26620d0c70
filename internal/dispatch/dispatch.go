// Package dispatch owns the per-connection message loop: decoding an
// inbound frame, validating it, routing it into the cell state engine or
// the session registry, and shaping the outbound messages the action
// produces.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"minesweeper-server/internal/mines"
	"minesweeper-server/internal/protocol"
	"minesweeper-server/internal/region"
	"minesweeper-server/internal/session"
	"minesweeper-server/internal/storage"
	"minesweeper-server/internal/support/check"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the slice of mines.Engine the dispatcher drives.
type Engine interface {
	Reveal(ctx context.Context, playerID string, x, y int) (mines.RevealOutcome, error)
	ToggleFlag(ctx context.Context, playerID string, x, y int) (mines.FlagOutcome, error)
}

// Registry is the slice of session.Registry the dispatcher drives.
type Registry interface {
	UpdateCursor(playerID string, x, y float64) (int, int)
	UpdateCachedScore(playerID string, score int)
	Get(playerID string) (*session.Session, bool)
	Touch(ctx context.Context, playerID string)
}

// Broadcaster is the slice of broadcast.Broadcaster the dispatcher drives.
type Broadcaster interface {
	Send(ctx context.Context, reg region.Region, msgType string, payload any, excludePlayerID string) error
}

// Dispatcher decodes, validates, and routes inbound frames for a single
// w x h toroidal world.
type Dispatcher struct {
	engine      Engine
	registry    Registry
	broadcaster Broadcaster
	w, h        int
	tracer      trace.Tracer
}

// New builds a Dispatcher.
func New(engine Engine, registry Registry, broadcaster Broadcaster, w, h int) *Dispatcher {
	return &Dispatcher{
		engine:      engine,
		registry:    registry,
		broadcaster: broadcaster,
		w:           w,
		h:           h,
		tracer:      otel.Tracer("minesweeper-server/dispatch"),
	}
}

// Handle decodes and routes one inbound frame for playerID. A malformed
// payload produces a single `error` reply frame; an unknown but
// well-formed message kind is logged and dropped with no reply. Neither
// case is ever reported as an error return — the caller must never drop
// the connection over it.
func (d *Dispatcher) Handle(ctx context.Context, playerID string, raw []byte) ([]byte, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.handle",
		trace.WithAttributes(attribute.String("player_id", playerID)))
	defer span.End()

	d.registry.Touch(ctx, playerID)

	msg, err := protocol.Decode(raw)
	if err != nil {
		var unknown *protocol.ErrUnknownType
		if errors.As(err, &unknown) {
			slog.Warn("dispatch: unknown message kind, dropping", "player_id", playerID, "type", unknown.Type)
			return nil, nil
		}
		slog.Debug("dispatch: malformed frame", "player_id", playerID, "err", err)
		return protocol.Encode(protocol.TypeError, protocol.ErrorMessage{Message: err.Error()})
	}

	switch m := msg.(type) {
	case protocol.ClickCell:
		return nil, d.handleClickCell(ctx, playerID, m)
	case protocol.FlagCell:
		return nil, d.handleFlagCell(ctx, playerID, m)
	case protocol.UpdatePosition:
		return nil, d.handleUpdatePosition(ctx, playerID, m)
	default:
		slog.Warn("dispatch: unhandled message kind", "player_id", playerID)
		return nil, nil
	}
}

func (d *Dispatcher) inBounds(x, y int) bool {
	return x >= 0 && x < d.w && y >= 0 && y < d.h
}

func (d *Dispatcher) handleClickCell(ctx context.Context, playerID string, m protocol.ClickCell) error {
	if !d.inBounds(m.X, m.Y) {
		frame, err := protocol.Encode(protocol.TypeError, protocol.ErrorMessage{Message: "clickCell: coordinates out of bounds"})
		if err != nil {
			return err
		}
		return d.sendTo(playerID, frame)
	}

	outcome, err := d.engine.Reveal(ctx, playerID, m.X, m.Y)
	if err != nil {
		return d.replyEngineError(playerID, "clickCell", err)
	}

	switch o := outcome.(type) {
	case mines.RevealIgnored:
		return nil
	case mines.MineHit:
		check.Assertf(o.Cell.X == m.X && o.Cell.Y == m.Y, "mine hit cell %d,%d does not match clicked %d,%d", o.Cell.X, o.Cell.Y, m.X, m.Y)
		d.registry.UpdateCachedScore(playerID, o.NewScore)
		frame, err := protocol.Encode(protocol.TypePlayerPenalty, protocol.PlayerPenalty{Score: o.ScoreDelta, StunDurationMs: o.StunMs})
		if err != nil {
			return err
		}
		if err := d.sendTo(playerID, frame); err != nil {
			return err
		}
		return d.broadcastCells(ctx, m.X, m.Y, []mines.RevealedCell{o.Cell})
	case mines.Safe:
		d.registry.UpdateCachedScore(playerID, o.NewScore)
		frame, err := protocol.Encode(protocol.TypeScoreUpdate, protocol.ScoreUpdate{Score: o.NewScore})
		if err != nil {
			return err
		}
		if err := d.sendTo(playerID, frame); err != nil {
			return err
		}
		return d.broadcastCells(ctx, m.X, m.Y, o.Cells)
	default:
		return fmt.Errorf("dispatch: clickCell: unexpected outcome %T", outcome)
	}
}

func (d *Dispatcher) handleFlagCell(ctx context.Context, playerID string, m protocol.FlagCell) error {
	if !d.inBounds(m.X, m.Y) {
		frame, err := protocol.Encode(protocol.TypeError, protocol.ErrorMessage{Message: "flagCell: coordinates out of bounds"})
		if err != nil {
			return err
		}
		return d.sendTo(playerID, frame)
	}

	outcome, err := d.engine.ToggleFlag(ctx, playerID, m.X, m.Y)
	if err != nil {
		return d.replyEngineError(playerID, "flagCell", err)
	}

	switch o := outcome.(type) {
	case mines.FlagIgnored:
		return nil
	case mines.Flagged:
		return d.broadcastFlag(ctx, o.X, o.Y, protocol.CellFlagged, nil)
	case mines.Unflagged:
		return d.broadcastFlag(ctx, o.X, o.Y, protocol.CellHidden, nil)
	default:
		return fmt.Errorf("dispatch: flagCell: unexpected outcome %T", outcome)
	}
}

func (d *Dispatcher) handleUpdatePosition(ctx context.Context, playerID string, m protocol.UpdatePosition) error {
	x, y := d.registry.UpdateCursor(playerID, m.X, m.Y)

	sess, ok := d.registry.Get(playerID)
	if !ok {
		return nil
	}

	reg := region.Centered(x, y, region.ViewportRadiusX, region.ViewportRadiusY, d.w, d.h)
	return d.broadcaster.Send(ctx, reg, protocol.TypePlayerPositionUpdate,
		protocol.PlayerPositionUpdate{Players: []protocol.PlayerRef{{ID: sess.PlayerID, X: x, Y: y}}},
		playerID)
}

func (d *Dispatcher) broadcastCells(ctx context.Context, x, y int, cells []mines.RevealedCell) error {
	wire := make([]protocol.Cell, 0, len(cells))
	for _, c := range cells {
		wire = append(wire, toWireCell(c))
	}
	reg := region.Centered(x, y, region.ViewportRadiusX, region.ViewportRadiusY, d.w, d.h)
	return d.broadcaster.Send(ctx, reg, protocol.TypeMapUpdate, protocol.MapUpdate{Cells: wire}, "")
}

func (d *Dispatcher) broadcastFlag(ctx context.Context, x, y int, state protocol.CellState, value *int) error {
	reg := region.Centered(x, y, region.ViewportRadiusX, region.ViewportRadiusY, d.w, d.h)
	cell := protocol.Cell{X: x, Y: y, State: state, Value: value}
	return d.broadcaster.Send(ctx, reg, protocol.TypeMapUpdate, protocol.MapUpdate{Cells: []protocol.Cell{cell}}, "")
}

func (d *Dispatcher) sendTo(playerID string, frame []byte) error {
	sess, ok := d.registry.Get(playerID)
	if !ok {
		return nil
	}
	if !sess.Send(frame) {
		return fmt.Errorf("dispatch: outbound queue full or closed for %s", playerID)
	}
	return nil
}

// replyEngineError implements the propagation policy in spec.md §7: the
// dispatcher never lets an engine failure drop the connection without
// first attempting a single error reply. Transient and conflict failures
// are reported as "action failed, retry allowed" and the session is kept;
// a fatal failure gets the same reply but is also returned so the caller
// can terminate the offending session.
func (d *Dispatcher) replyEngineError(playerID, action string, cause error) error {
	slog.Warn("dispatch: engine call failed", "player_id", playerID, "action", action, "err", cause)

	frame, encErr := protocol.Encode(protocol.TypeError, protocol.ErrorMessage{Message: action + ": action failed, retry allowed"})
	if encErr == nil {
		_ = d.sendTo(playerID, frame)
	}

	if errors.Is(cause, storage.ErrFatal) {
		return fmt.Errorf("dispatch: %s: %w", action, cause)
	}
	return nil
}

func toWireCell(c mines.RevealedCell) protocol.Cell {
	if c.Mine {
		return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellMine, Value: protocol.IntPtr(-1)}
	}
	return protocol.Cell{X: c.X, Y: c.Y, State: protocol.CellRevealed, Value: protocol.IntPtr(c.Adjacent)}
}
