// Package client defines the common interface for relay clients.
package client

import (
	"context"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// Client defines the interface for relay clients.
// Both TCP and WebSocket implementations satisfy this interface.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	// Join sends the name line. It must be the first thing sent.
	Join() error
	SendMessage(content string) error
	// Messages delivers relayed lines. It is closed when the server hangs up
	// or the client disconnects.
	Messages() <-chan protocol.Message
}
