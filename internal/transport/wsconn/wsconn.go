// Package wsconn adapts a gorilla/websocket connection to transport.Conn,
// the default transport the server's HTTP front-end wires in.
package wsconn

import (
	"sync"

	"minesweeper-server/internal/transport"

	"github.com/gorilla/websocket"
)

// Upgrader is the shared gorilla upgrader used by the HTTP front-end.
// CheckOrigin is left unset, so gorilla's default same-origin check
// applies; cmd/mineserver does not override it.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn wraps a *websocket.Conn, serializing writes since gorilla's
// connection does not allow concurrent writers.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// New wraps an already-upgraded websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage returns the next text or binary frame's payload.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteMessage sends frame as a text frame.
func (c *Conn) WriteMessage(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

var _ transport.Conn = (*Conn)(nil)
