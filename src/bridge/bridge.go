// Package bridge links relay servers so that peers connected to different
// servers share one broadcast channel.
package bridge

import (
	"context"

	"github.com/orchestra-mcp/relay/src/types"
)

// Bridge carries messages between relay instances.
type Bridge interface {
	// Publish sends msg to every other instance.
	Publish(msg types.Message) error

	// Start connects and begins delivering remote messages. ctx bounds
	// the connection attempt only.
	Start(ctx context.Context) error

	// Stop shuts the bridge down.
	Stop() error

	// Available reports whether the bridge is connected.
	Available() bool
}

// BroadcastTarget receives messages from other instances. The hub
// implements it.
type BroadcastTarget interface {
	BroadcastToLocal(msg types.Message)
}
