package service

import (
	"context"
	"fmt"

	"github.com/orchestra-mcp/relay/src/hub"
	"github.com/orchestra-mcp/relay/src/types"
	"github.com/rs/zerolog"
)

// Service provides the high-level relay API used by the admin surface.
type Service struct {
	hub        *hub.Hub
	serverName string
	logger     zerolog.Logger
}

// New creates a relay service backed by the given hub. serverName is the
// author attached to announcements.
func New(h *hub.Hub, serverName string, logger zerolog.Logger) *Service {
	return &Service{hub: h, serverName: serverName, logger: logger}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Announce broadcasts a text line authored by the server to every peer.
func (s *Service) Announce(ctx context.Context, body string) error {
	if body == "" {
		return fmt.Errorf("announcement body is empty")
	}
	if err := s.hub.Publish(ctx, types.Text{Author: s.serverName, Body: body}); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	s.logger.Debug().Str("author", s.serverName).Msg("announcement queued")
	return nil
}

// SendToClient sends a text line from the server to a single client.
func (s *Service) SendToClient(clientID, body string) error {
	if err := s.hub.SendToClient(clientID, types.Text{Author: s.serverName, Body: body}); err != nil {
		return fmt.Errorf("client %s: %w", clientID, err)
	}
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}

// Stats returns relay counters.
func (s *Service) Stats() hub.Stats {
	return s.hub.Stats()
}
