// Package gateway exposes the relay over WebSocket and serves the HTTP
// admin API.
package gateway

import (
	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/relay/src/hub"
	"github.com/orchestra-mcp/relay/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Config holds gateway settings.
type Config struct {
	Path            string // WebSocket endpoint, e.g. "/ws"
	ReadBufferSize  int
	WriteBufferSize int
	MaxConnections  int // shared with the TCP listener, 0 = unlimited
	MaxFieldSize    int
}

// Gateway joins WebSocket peers to the hub and serves admin routes.
type Gateway struct {
	cfg      Config
	svc      *service.Service
	hub      *hub.Hub
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// New creates a Gateway over svc.
func New(cfg Config, svc *service.Service, logger zerolog.Logger) *Gateway {
	return &Gateway{
		cfg: cfg,
		svc: svc,
		hub: svc.Hub(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// Fiber v3 does not expose *fasthttp.RequestCtx, so this is served by a
// plain fasthttp.Server.
func (g *Gateway) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != g.cfg.Path {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if g.cfg.MaxConnections > 0 && g.hub.ClientCount() >= g.cfg.MaxConnections {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"too_many_connections"}`)
			return
		}

		clientID := uuid.NewString()
		err := g.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := hub.NewClient(clientID, newWSConn(conn, g.cfg.MaxFieldSize), g.hub, "ws")
			if err := g.hub.Register(client); err != nil {
				g.logger.Error().Err(err).Msg("register failed")
				conn.Close()
				return
			}
			client.ReadPump()
		})
		if err != nil {
			g.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}
