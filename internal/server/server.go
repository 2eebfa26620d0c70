// Package server wires the HTTP front-end that upgrades connections to
// websockets and drives each one's read/write loop against the
// dispatcher and lifecycle handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"minesweeper-server/internal/lifecycle"
	"minesweeper-server/internal/protocol"
	"minesweeper-server/internal/session"
	"minesweeper-server/internal/transport"
	"minesweeper-server/internal/transport/wsconn"
)

// Dispatcher is the slice of dispatch.Dispatcher the server drives.
type Dispatcher interface {
	Handle(ctx context.Context, playerID string, raw []byte) ([]byte, error)
}

// SessionLookup resolves a playerId to its live Session, used by the
// write loop to drain the broadcaster's outbound queue. session.Registry
// satisfies this directly.
type SessionLookup interface {
	Get(playerID string) (*session.Session, bool)
}

// Server owns the HTTP listener, the websocket upgrade handshake, and
// the per-connection read/write goroutines.
type Server struct {
	lifecycle  *lifecycle.Handlers
	dispatcher Dispatcher
	sessions   SessionLookup
	assetsDir  string

	mux *http.ServeMux
}

// New builds a Server. assetsDir, if non-empty, is served at "/" via
// http.FileServer; the wire endpoint is always "/ws".
func New(lc *lifecycle.Handlers, dispatcher Dispatcher, sessions SessionLookup, assetsDir string) *Server {
	s := &Server{lifecycle: lc, dispatcher: dispatcher, sessions: sessions, assetsDir: assetsDir, mux: http.NewServeMux()}
	s.mux.HandleFunc("/ws", s.handleWebsocket)
	if assetsDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(assetsDir)))
	}
	return s
}

// Handler returns the server's composed http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := wsconn.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", "err", err)
		return
	}
	conn := wsconn.New(ws)
	s.serveConn(r.Context(), conn)
}

// serveConn runs a connection's whole lifetime: handshake, read loop,
// write loop, and teardown. It returns once the connection is closed,
// locally or by the peer.
func (s *Server) serveConn(ctx context.Context, conn transport.Conn) {
	initial, err := s.lifecycle.Connect(ctx, conn)
	if err != nil {
		slog.Warn("server: connect failed", "err", err)
		_ = conn.Close()
		return
	}

	frame, err := protocol.Encode(protocol.TypeInitialState, initial)
	if err != nil {
		slog.Error("server: encode initialState failed", "err", err)
		_ = conn.Close()
		return
	}
	if err := conn.WriteMessage(frame); err != nil {
		_ = conn.Close()
		return
	}

	playerID := initial.PlayerID
	lastX, lastY := initial.Self.X, initial.Self.Y

	done := make(chan struct{})
	go s.writeLoop(conn, playerID, done)

	s.readLoop(ctx, conn, playerID, &lastX, &lastY)

	close(done)
	_ = conn.Close()
	if err := s.lifecycle.Disconnect(ctx, conn, lastX, lastY); err != nil {
		slog.Warn("server: disconnect broadcast failed", "player_id", playerID, "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, conn transport.Conn, playerID string, lastX, lastY *int) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := s.dispatcher.Handle(ctx, playerID, raw)
		if err != nil {
			slog.Error("server: fatal dispatch failure, terminating session", "player_id", playerID, "err", err)
			return
		}
		if sess, ok := s.sessions.Get(playerID); ok {
			*lastX, *lastY = sess.Cursor()
		}
		if frame != nil {
			if err := conn.WriteMessage(frame); err != nil {
				return
			}
		}
	}
}

// writeLoop drains the session's outbound queue into the connection.
// It needs the registry-backed session to exist, which lifecycle.Connect
// guarantees by the time this goroutine starts.
func (s *Server) writeLoop(conn transport.Conn, playerID string, done <-chan struct{}) {
	sess, ok := s.sessions.Get(playerID)
	if !ok {
		return
	}
	for {
		select {
		case <-done:
			return
		case frame, ok := <-sess.Outbound():
			if !ok {
				return
			}
			if err := conn.WriteMessage(frame); err != nil {
				return
			}
		}
	}
}
