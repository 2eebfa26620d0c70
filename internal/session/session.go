// Package session tracks connected players in memory: their cursor
// position, cached score, and an outbound frame queue used by the region
// broadcaster. It is the only shared mutable in-memory state in the
// server; every other component holds only local data.
package session

import "minesweeper-server/internal/region"

// outboundBufferCap bounds each session's outbound queue. A recipient
// that cannot keep up is dropped rather than allowed to stall the
// broadcaster — "tens of messages" per the back-pressure policy.
const outboundBufferCap = 64

// Handle identifies the underlying transport connection a Session is
// bound to. Callers pass a comparable value (typically the transport.Conn
// value for the connection) so the registry can maintain the transportHandle -> playerId
// side mapping without importing the transport package.
type Handle any

// Session is the in-memory record pairing a transport handle with a
// player identity, cursor, and cached score.
type Session struct {
	PlayerID string
	Handle   Handle

	cursorX, cursorY int
	score            int

	outbound chan []byte
	closed   bool
}

func newSession(id string, handle Handle, w, h int) *Session {
	return &Session{
		PlayerID: id,
		Handle:   handle,
		cursorX:  w / 2,
		cursorY:  h / 2,
		outbound: make(chan []byte, outboundBufferCap),
	}
}

// NewForTest builds a standalone Session with an explicit outbound buffer
// capacity, for packages (such as broadcast) that need a Session double
// without going through a Registry.
func NewForTest(id string, handle Handle, bufCap int) *Session {
	return &Session{
		PlayerID: id,
		Handle:   handle,
		outbound: make(chan []byte, bufCap),
	}
}

// Cursor returns the session's current position.
func (s *Session) Cursor() (x, y int) { return s.cursorX, s.cursorY }

// Score returns the session's cached score.
func (s *Session) Score() int { return s.score }

// Outbound exposes the frame queue a connection's writer goroutine drains.
func (s *Session) Outbound() <-chan []byte { return s.outbound }

// Send enqueues a pre-serialized frame without blocking. It reports false
// if the queue is full or the session has been marked closed — callers
// must treat that as a delivery failure and schedule the session for
// removal rather than retrying.
func (s *Session) Send(frame []byte) bool {
	if s.closed {
		return false
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

// Projection is the read-only view of a session returned by region
// queries, decoupled from the mutable Session so callers can't reach
// back into the registry's internals.
type Projection struct {
	PlayerID string
	X, Y     int
}

func (s *Session) projection() Projection {
	return Projection{PlayerID: s.PlayerID, X: s.cursorX, Y: s.cursorY}
}

// inRegion reports whether this session's cursor lies in r.
func (s *Session) inRegion(r region.Region) bool {
	return r.Contains(s.cursorX, s.cursorY)
}
