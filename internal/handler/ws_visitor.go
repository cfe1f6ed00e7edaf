package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// VisitorWSHandler is the widget's endpoint. A connection authenticates by
// sending a join event carrying the site credential; everything after that
// is scoped to the session established there.
type VisitorWSHandler struct {
	hub       *service.Hub
	resolver  *service.SiteResolver
	lifecycle *service.LifecycleService
	router    *service.RouterService
	metrics   *metrics.Metrics
}

func NewVisitorWSHandler(hub *service.Hub, resolver *service.SiteResolver, lifecycle *service.LifecycleService, router *service.RouterService, m *metrics.Metrics) *VisitorWSHandler {
	return &VisitorWSHandler{hub: hub, resolver: resolver, lifecycle: lifecycle, router: router, metrics: m}
}

func (h *VisitorWSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(h.handleConnection)(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *VisitorWSHandler) handleConnection(c *websocket.Conn) {
	client := &service.Client{
		Conn:    c,
		Session: service.Session{Kind: service.KindVisitor},
		Send:    make(chan []byte, sendBuffer),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)
	if h.metrics != nil {
		h.metrics.ConnectedClients.WithLabelValues(string(service.KindVisitor)).Inc()
		defer h.metrics.ConnectedClients.WithLabelValues(string(service.KindVisitor)).Dec()
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

func (h *VisitorWSHandler) dispatch(client *service.Client, event *model.Event) {
	ctx := context.Background()

	switch event.Type {
	case model.EvPing:
		sendEvent(h.hub, client, model.EvPong, nil)

	case model.EvJoin:
		h.handleJoin(ctx, client, event.Data)

	case model.EvSendMessage:
		h.handleSendMessage(ctx, client, event.Data)

	case model.EvTyping:
		if client.Session.ConversationID == "" {
			return
		}
		typing := model.NewEvent(model.EvTyping, model.TypingPayload{
			ConversationID: client.Session.ConversationID,
			SenderKind:     string(model.SenderVisitor),
			SenderName:     client.Session.Name,
		})
		h.hub.ToRoom(service.ConvRoom(client.Session.ConversationID), typing)
		h.hub.ToRoom(service.SiteRoom(client.Session.SiteID), typing)

	case model.EvRate:
		var p model.RatePayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			sendError(h.hub, client, service.ErrValidation)
			return
		}
		conversationID := p.ConversationID
		if conversationID == "" {
			conversationID = client.Session.ConversationID
		}
		if err := h.lifecycle.Rate(ctx, conversationID, p.Score, p.Feedback); err != nil {
			sendError(h.hub, client, err)
		}

	default:
		log.Printf("[WS] unknown visitor event type %q", event.Type)
	}
}

func (h *VisitorWSHandler) handleJoin(ctx context.Context, client *service.Client, data json.RawMessage) {
	var p model.JoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.VisitorID == "" {
		sendError(h.hub, client, service.ErrValidation)
		return
	}

	site, err := h.resolver.Resolve(ctx, p.SiteKey)
	if err != nil {
		sendError(h.hub, client, err)
		return
	}

	client.Session.SiteID = site.ID
	client.Session.VisitorID = p.VisitorID
	client.Session.Name = p.VisitorName
	client.Session.Email = p.VisitorEmail

	// Rejoin is idempotent: a returning visitor lands back in their live
	// conversation with the transcript; a new one just gets the welcome text.
	conv, err := h.lifecycle.FindActiveConversation(ctx, site.ID, p.VisitorID)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			sendError(h.hub, client, err)
			return
		}
		sendEvent(h.hub, client, model.EvConversationJoined, model.ConversationJoinedPayload{
			WelcomeMessage: site.WelcomeMessage,
		})
		return
	}

	client.Session.ConversationID = conv.ID
	h.hub.JoinRoom(client, service.ConvRoom(conv.ID))

	_, msgs, err := h.router.Transcript(ctx, conv.ID)
	if err != nil {
		sendError(h.hub, client, err)
		return
	}
	sendEvent(h.hub, client, model.EvConversationJoined, model.ConversationJoinedPayload{
		Conversation: conv,
		Messages:     msgs,
	})
}

func (h *VisitorWSHandler) handleSendMessage(ctx context.Context, client *service.Client, data json.RawMessage) {
	if client.Session.SiteID == "" {
		sendError(h.hub, client, service.ErrInvalidCredential)
		return
	}

	var p model.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		sendError(h.hub, client, service.ErrValidation)
		return
	}
	if p.SenderName != "" {
		client.Session.Name = p.SenderName
	}

	// Make sure the visitor is in their conversation room before the fan-out
	// so they see their own message echo.
	if client.Session.ConversationID == "" {
		site := &model.Site{ID: client.Session.SiteID}
		conv, _, err := h.lifecycle.FindOrCreate(ctx, site, client.Session.VisitorID, client.Session.Name, client.Session.Email)
		if err != nil {
			sendError(h.hub, client, err)
			return
		}
		client.Session.ConversationID = conv.ID
		h.hub.JoinRoom(client, service.ConvRoom(conv.ID))
	}

	site := &model.Site{ID: client.Session.SiteID}
	if _, _, err := h.router.VisitorMessage(ctx, site, client.Session.VisitorID, client.Session.Name, client.Session.Email, p.Content, p.Kind); err != nil {
		sendError(h.hub, client, err)
	}
}
