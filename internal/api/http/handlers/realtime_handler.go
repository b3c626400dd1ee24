package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/realtime"
	"github.com/spec-kit/webdesk/internal/service"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

// RealtimeHandler streams ticket events over websockets.
type RealtimeHandler struct {
	hub     *realtime.Hub
	tickets *service.TicketService
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, tickets *service.TicketService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, tickets: tickets}
}

// Upgrade scopes the stream before the protocol switch. Only admins may
// follow every ticket; everyone else subscribes to one ticket they can read.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticketID := c.Query("ticket_id")
	if ticketID == "" {
		if actor.Role != domain.UserRoleAdmin {
			return apperrors.NewForbidden("ticket_id is required to follow ticket events")
		}
	} else if _, err := h.tickets.GetTicket(c.UserContext(), actor, ticketID); err != nil {
		return err
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("ticket_id", ticketID)
	return c.Next()
}

// Stream GET /ws/tickets. Incoming frames are read only to notice the close.
func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ticketID, _ := conn.Locals("ticket_id").(string)
		ctx := context.Background()
		client, err := h.hub.Register(ctx, conn, ticketID)
		if err != nil {
			return
		}
		defer h.hub.Unregister(ctx, client)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})
}
