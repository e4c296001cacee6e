// Package chat provides the relay core shared by all transports: peer
// registries, outbound queues and the per-connection agent.
package chat

import "context"

// Conn abstracts a line-oriented peer connection for both TCP and WebSocket.
// This interface isolates transport details from relay logic.
//
// ReadLine is called from one goroutine while Buffer and Flush are called
// from another; implementations must keep the two sides independent.
type Conn interface {
	// ReadLine returns the next complete line without its terminator.
	// Returns io.EOF when the peer has closed the connection.
	ReadLine(ctx context.Context) ([]byte, error)

	// Buffer stages data for the next Flush without touching the network.
	Buffer(data []byte)

	// Flush writes all staged data.
	Flush(ctx context.Context) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address, which identifies the peer.
	RemoteAddr() string
}
