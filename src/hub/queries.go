package hub

import (
	"github.com/orchestra-mcp/relay/src/types"
)

// Stats is a point-in-time view of relay activity.
type Stats struct {
	Clients          int   `json:"clients"`
	QueueLen         int   `json:"queue_len"`
	QueueCap         int   `json:"queue_cap"`
	MessagesReceived int64 `json:"messages_received"`
	MessagesRelayed  int64 `json:"messages_relayed"`
	SendFailures     int64 `json:"send_failures"`
	ClientsDropped   int64 `json:"clients_dropped"`
}

// OnConnection registers a callback for new connections.
func (h *Hub) OnConnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections.
func (h *Hub) OnDisconnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

// ConnectedClients returns a list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	return h.registry.IDs()
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	client, ok := h.registry.Get(clientID)
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:          h.registry.Len(),
		QueueLen:         len(h.incoming),
		QueueCap:         cap(h.incoming),
		MessagesReceived: h.received.Load(),
		MessagesRelayed:  h.relayed.Load(),
		SendFailures:     h.sendFailures.Load(),
		ClientsDropped:   h.dropped.Load(),
	}
}
