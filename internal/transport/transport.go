// Package transport defines the minimal bidirectional message transport
// the dispatcher depends on, decoupled from any concrete wire protocol so
// tests and alternate adapters never need a real network socket.
package transport

// Conn is one accepted bidirectional connection. Implementations must be
// safe for concurrent ReadMessage/WriteMessage/Close calls from separate
// goroutines (a connection typically has one reader goroutine and one
// writer goroutine running against it).
type Conn interface {
	// ReadMessage blocks for the next inbound frame. It returns an error
	// once the connection is closed, locally or by the peer.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one outbound frame.
	WriteMessage(frame []byte) error

	// Close releases the underlying connection. Idempotent.
	Close() error
}
