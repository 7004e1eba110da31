package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/relay/src/hub"
	"github.com/orchestra-mcp/relay/src/types"
)

const announceTimeout = 5 * time.Second

// textRequest is accepted as JSON, CBOR, XML or form data.
type textRequest struct {
	Body string `json:"body" xml:"body" form:"body"`
}

func bindText(c fiber.Ctx) (string, error) {
	var req textRequest
	if err := c.Bind().Body(&req); err != nil {
		return "", err
	}
	if req.Body == "" {
		return "", errors.New("body is required")
	}
	return req.Body, nil
}

// NewAdminApp returns a Fiber app with the admin routes mounted.
func (g *Gateway) NewAdminApp() *fiber.App {
	app := fiber.New()
	g.RegisterRoutes(app)
	return app
}

// RegisterRoutes registers the admin API on group.
func (g *Gateway) RegisterRoutes(group fiber.Router) {
	group.Get("/relay/info", g.handleInfo)
	group.Get("/relay/clients", g.handleListClients)
	group.Get("/relay/clients/:id", g.handleGetClient)
	group.Post("/relay/clients/:id/message", g.handleDirectMessage)
	group.Post("/relay/announce", g.handleAnnounce)
}

func (g *Gateway) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"relay":       true,
		"ws_endpoint": g.cfg.Path,
		"clients":     g.hub.ClientCount(),
		"stats":       g.svc.Stats(),
	})
}

func (g *Gateway) handleListClients(c fiber.Ctx) error {
	ids := g.svc.GetConnectedClients()
	infos := make([]types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		info, err := g.svc.GetClientInfo(id)
		if err == nil {
			infos = append(infos, *info)
		}
	}
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (g *Gateway) handleGetClient(c fiber.Ctx) error {
	info, err := g.svc.GetClientInfo(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(info)
}

func (g *Gateway) handleDirectMessage(c fiber.Ctx) error {
	body, err := bindText(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	id := c.Params("id")
	if err := g.svc.SendToClient(id, body); err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, hub.ErrUnknownClient) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sent": true, "client_id": id})
}

func (g *Gateway) handleAnnounce(c fiber.Ctx) error {
	body, err := bindText(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()
	if err := g.svc.Announce(ctx, body); err != nil {
		g.logger.Warn().Err(err).Msg("announce failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"announced": true})
}
