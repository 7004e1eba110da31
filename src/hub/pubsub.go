package hub

import (
	"context"
	"errors"

	"github.com/orchestra-mcp/relay/src/types"
)

// ErrStopped is returned when queueing on a stopped hub.
var ErrStopped = errors.New("hub stopped")

// ErrUnknownClient is returned by SendToClient for an unregistered ID.
var ErrUnknownClient = errors.New("client not found")

// publishToBridge forwards a message to the bridge if one is attached.
func (h *Hub) publishToBridge(msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(msg); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish queues a server-originated message for broadcast to everyone.
func (h *Hub) Publish(ctx context.Context, msg types.Message) error {
	return h.enqueue(ctx, inbound{msg: msg})
}

// BroadcastToLocal delivers a message from the bridge to local clients only.
// It does not re-publish to the bridge, preventing loops.
func (h *Hub) BroadcastToLocal(msg types.Message) {
	if err := h.enqueue(context.Background(), inbound{msg: msg, local: true}); err != nil {
		h.logger.Debug().Err(err).Msg("bridge message dropped")
	}
}

func (h *Hub) enqueue(ctx context.Context, in inbound) error {
	select {
	case h.incoming <- in:
		h.received.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// SendToClient writes a message directly to one client, bypassing the
// queue. A failed write drops the client.
func (h *Hub) SendToClient(clientID string, msg types.Message) error {
	client, ok := h.registry.Get(clientID)
	if !ok {
		return ErrUnknownClient
	}
	if err := client.SendMessage(msg); err != nil {
		h.sendFailures.Add(1)
		h.Unregister(client)
		return err
	}
	return nil
}
