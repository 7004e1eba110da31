// Package server runs the TCP accept loop that feeds peers into the hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/relay/src/hub"
	"github.com/orchestra-mcp/relay/src/wire"
	"github.com/rs/zerolog"
)

// ErrBind wraps failures to open the listening socket.
var ErrBind = errors.New("bind listener")

// Config holds accept loop settings.
type Config struct {
	Addr           string // host:port to listen on
	MaxConnections int    // 0 = unlimited
	MaxFieldSize   int    // per-field decode limit, 0 = wire default
}

// Server accepts TCP peers and registers them with a hub.
type Server struct {
	cfg    Config
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a Server bound to h.
func New(cfg Config, h *hub.Hub, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		hub:    h,
		logger: logger.With().Str("component", "accept").Logger(),
	}
}

// Listen opens the configured TCP endpoint.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBind, s.cfg.Addr, err)
	}
	return ln, nil
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, which closes ln
// and returns nil. Serve takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("relay listening")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("accept loop stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0
		s.admit(conn)
	}
}

// admit registers conn and starts its reader. It never blocks on the peer.
func (s *Server) admit(conn net.Conn) {
	if s.cfg.MaxConnections > 0 && s.hub.ClientCount() >= s.cfg.MaxConnections {
		s.logger.Warn().
			Str("remote", conn.RemoteAddr().String()).
			Int("max_connections", s.cfg.MaxConnections).
			Msg("connection limit reached, rejecting")
		conn.Close()
		return
	}

	client := hub.NewClient(uuid.NewString(), wire.NewStreamConn(conn, s.cfg.MaxFieldSize), s.hub, "tcp")
	if err := s.hub.Register(client); err != nil {
		s.logger.Error().Err(err).Msg("register failed")
		conn.Close()
		return
	}
	go client.ReadPump()
}
