package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/middleware"
	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// AgentWSHandler is the dashboard's endpoint. The agent JWT is validated at
// upgrade; the connection then joins site and conversation rooms on demand.
type AgentWSHandler struct {
	hub       *service.Hub
	lifecycle *service.LifecycleService
	router    *service.RouterService
	metrics   *metrics.Metrics
	jwtSecret string
}

func NewAgentWSHandler(hub *service.Hub, lifecycle *service.LifecycleService, router *service.RouterService, m *metrics.Metrics, jwtSecret string) *AgentWSHandler {
	return &AgentWSHandler{hub: hub, lifecycle: lifecycle, router: router, metrics: m, jwtSecret: jwtSecret}
}

func (h *AgentWSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		token := c.Query("token")
		if token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "token required"})
		}

		agentID, name, err := middleware.ParseAgentToken(token, h.jwtSecret)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals("agent_id", agentID)
		c.Locals("agent_name", name)
		return websocket.New(h.handleConnection)(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *AgentWSHandler) handleConnection(c *websocket.Conn) {
	agentID, _ := c.Locals("agent_id").(string)
	name, _ := c.Locals("agent_name").(string)

	client := &service.Client{
		Conn: c,
		Session: service.Session{
			Kind:    service.KindAgent,
			AgentID: agentID,
			Name:    name,
		},
		Send: make(chan []byte, sendBuffer),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)
	if h.metrics != nil {
		h.metrics.ConnectedClients.WithLabelValues(string(service.KindAgent)).Inc()
		defer h.metrics.ConnectedClients.WithLabelValues(string(service.KindAgent)).Dec()
	}

	startWriter(c, client)

	c.SetReadDeadline(time.Now().Add(readDeadline))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(readDeadline))

		var event model.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		h.dispatch(client, &event)
	}
}

func (h *AgentWSHandler) dispatch(client *service.Client, event *model.Event) {
	ctx := context.Background()

	switch event.Type {
	case model.EvPing:
		sendEvent(h.hub, client, model.EvPong, nil)

	case model.EvJoinSite:
		var p model.JoinSitePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.SiteID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		client.Session.SiteID = p.SiteID
		h.hub.JoinRoom(client, service.SiteRoom(p.SiteID))

	case model.EvJoinConversation:
		var p model.JoinConversationPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		// Join the room first so this agent sees the read-receipt fan-out
		// triggered by their own join.
		h.hub.JoinRoom(client, service.ConvRoom(p.ConversationID))
		conv, msgs, err := h.router.AgentJoinConversation(ctx, p.ConversationID, client.Session.AgentID)
		if err != nil {
			h.hub.LeaveRoom(client, service.ConvRoom(p.ConversationID))
			sendError(h.hub, client, err)
			return
		}
		sendEvent(h.hub, client, model.EvConversationJoined, model.ConversationJoinedPayload{
			Conversation: conv,
			Messages:     msgs,
		})

	case model.EvSendMessage:
		var p model.SendMessagePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		name := client.Session.Name
		if p.SenderName != "" {
			name = p.SenderName
		}
		if _, _, err := h.router.AgentMessage(ctx, p.ConversationID, client.Session.AgentID, name, p.Content, p.Kind); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvTyping:
		var p model.ConversationRefPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		h.hub.ToRoom(service.ConvRoom(p.ConversationID), model.NewEvent(model.EvTyping, model.TypingPayload{
			ConversationID: p.ConversationID,
			SenderKind:     string(model.SenderAgent),
			SenderName:     client.Session.Name,
		}))

	case model.EvAssignConversation:
		var p model.AssignPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" || p.AgentID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.Assign(ctx, p.ConversationID, p.AgentID, client.Session.AgentID); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvClaimConversation:
		var p model.AssignPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.Claim(ctx, p.ConversationID, client.Session.AgentID); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvSetDepartment:
		var p model.SetDepartmentPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" || p.DepartmentID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.SetDepartment(ctx, p.ConversationID, p.DepartmentID); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvSetPriority:
		var p model.SetPriorityPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.SetPriority(ctx, p.ConversationID, model.Priority(p.Priority)); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvResolve:
		var p model.ConversationRefPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.Resolve(ctx, p.ConversationID); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvClose:
		var p model.ConversationRefPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.CloseConversation(ctx, p.ConversationID); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvAddNote:
		var p model.AddNotePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if _, err := h.lifecycle.AddNote(ctx, p.ConversationID, client.Session.AgentID, p.Text); err != nil {
			sendError(h.hub, client, err)
		}

	case model.EvUpdateStatus:
		var p model.UpdateStatusPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		if err := h.lifecycle.SetAgentStatus(ctx, client.Session.AgentID, model.AgentStatus(p.Status)); err != nil {
			sendError(h.hub, client, err)
		}

	default:
		log.Printf("[WS] unknown agent event type %q from %s", event.Type, client.Session.AgentID)
	}
}
