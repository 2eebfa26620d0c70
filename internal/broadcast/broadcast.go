// Package broadcast fans a single encoded message out to every session
// whose cursor lies inside a region, mirroring the non-blocking
// publish-to-subscribers shape used elsewhere in the server's session
// registry: a slow or gone recipient is dropped, never allowed to stall
// the sender.
package broadcast

import (
	"context"
	"log/slog"

	"minesweeper-server/internal/protocol"
	"minesweeper-server/internal/region"
	"minesweeper-server/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Registry is the slice of session.Registry the broadcaster needs.
type Registry interface {
	SessionsInRegion(reg region.Region, exclude string) []session.Projection
	Get(playerID string) (*session.Session, bool)
	Remove(ctx context.Context, handle session.Handle) (string, bool)
}

// Broadcaster serializes one outbound message and delivers it to every
// session in a region, concurrently and without blocking on any single
// recipient's queue.
type Broadcaster struct {
	registry Registry

	tracer  trace.Tracer
	sent    metric.Int64Counter
	dropped metric.Int64Counter
}

// New builds a Broadcaster over reg.
func New(reg Registry) *Broadcaster {
	meter := otel.Meter("minesweeper-server/broadcast")
	sent, _ := meter.Int64Counter("broadcast.sent.count")
	dropped, _ := meter.Int64Counter("broadcast.dropped.count")

	return &Broadcaster{
		registry: reg,
		tracer:   otel.Tracer("minesweeper-server/broadcast"),
		sent:     sent,
		dropped:  dropped,
	}
}

// Send encodes msgType/payload once and delivers it to every session
// whose cursor lies in reg, excluding excludePlayerID if non-empty. A
// recipient whose outbound queue is full is dropped from delivery and
// scheduled for removal from the registry — a backed-up connection is
// presumed gone, not merely slow.
func (b *Broadcaster) Send(ctx context.Context, reg region.Region, msgType string, payload any, excludePlayerID string) error {
	ctx, span := b.tracer.Start(ctx, "broadcast.send",
		trace.WithAttributes(attribute.String("message_type", msgType)))
	defer span.End()

	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	targets := b.registry.SessionsInRegion(reg, excludePlayerID)
	if len(targets) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			sess, ok := b.registry.Get(target.PlayerID)
			if !ok {
				return nil
			}
			if sess.Send(frame) {
				b.sent.Add(ctx, 1)
				return nil
			}
			b.dropped.Add(ctx, 1)
			slog.Warn("broadcast: dropping unresponsive session", "player_id", target.PlayerID, "message_type", msgType)
			b.registry.Remove(ctx, sess.Handle)
			return nil
		})
	}
	return g.Wait() // per-target failures are only logged above; the group never returns an error
}
