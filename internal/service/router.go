package service

import (
	"context"
	"errors"
	"log"
	"time"

	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/model"
)

// RouterService persists messages and fans them out to the rooms that
// should see them: the conversation room, the site-wide agent room, and for
// visitor traffic a cross-site agent notification.
type RouterService struct {
	lifecycle *LifecycleService
	convs     ConversationStore
	msgs      MessageStore
	agents    AgentStore
	hub       Broadcaster
	responder *AutoResponder
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRouterService(lifecycle *LifecycleService, convs ConversationStore, msgs MessageStore, agents AgentStore, hub Broadcaster, responder *AutoResponder, m *metrics.Metrics) *RouterService {
	return &RouterService{
		lifecycle: lifecycle,
		convs:     convs,
		msgs:      msgs,
		agents:    agents,
		hub:       hub,
		responder: responder,
		metrics:   m,
		now:       time.Now,
	}
}

// VisitorMessage handles one inbound visitor message end to end: resolve or
// create the conversation, persist, fan out, then hand the content to the
// auto-responder. The bot reply is best-effort and can never fail the
// visitor's own delivery.
func (s *RouterService) VisitorMessage(ctx context.Context, site *model.Site, visitorID, visitorName, visitorEmail, content string, kind model.MessageKind) (*model.Conversation, *model.Message, error) {
	if content == "" {
		return nil, nil, ErrValidation
	}
	if kind == "" {
		kind = model.MessageText
	}
	if !kind.Valid() {
		return nil, nil, ErrValidation
	}

	conv, _, err := s.lifecycle.FindOrCreate(ctx, site, visitorID, visitorName, visitorEmail)
	if err != nil {
		return nil, nil, err
	}

	msg, err := s.msgs.Insert(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderKind:     model.SenderVisitor,
		SenderID:       visitorID,
		SenderName:     visitorName,
		Body:           content,
		Kind:           kind,
		IsRead:         false,
	})
	if err != nil {
		return nil, nil, err
	}

	at := s.now()
	if err := s.convs.TouchLastMessage(ctx, conv.ID, at); err != nil {
		log.Printf("[Router] last-message bump failed for %s: %v", conv.ID, err)
	}
	conv.LastMessageAt = &at

	s.fanOut(conv, msg)
	s.hub.ToAgents(model.NewEvent(model.EvNotification, model.NotificationPayload{
		Title:          "New message from " + displayName(visitorName, visitorID),
		Body:           content,
		ConversationID: conv.ID,
		SiteID:         conv.SiteID,
	}))
	if s.metrics != nil {
		s.metrics.MessagesRouted.WithLabelValues(string(model.SenderVisitor)).Inc()
	}

	if s.responder != nil {
		s.responder.Respond(ctx, conv, content)
	}
	return conv, msg, nil
}

// AgentMessage handles one agent reply: assign-on-reply when the
// conversation is unassigned, first-response stamping, persist, fan out.
func (s *RouterService) AgentMessage(ctx context.Context, conversationID, agentID, agentName, content string, kind model.MessageKind) (*model.Conversation, *model.Message, error) {
	if content == "" {
		return nil, nil, ErrValidation
	}
	if kind == "" {
		kind = model.MessageText
	}
	if !kind.Valid() {
		return nil, nil, ErrValidation
	}

	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, notFound(err)
	}

	// Assign-on-reply: replying to an unassigned conversation takes it,
	// through the same guarded path as an explicit claim. A rejection only
	// skips the assignment, never the reply.
	if conv.AssignedAgentID == nil && agentID != "" && !conv.Status.Terminal() {
		updated, err := s.lifecycle.autoAssign(ctx, conv, agentID)
		switch {
		case err == nil:
			conv = updated
			s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvAssigned, model.ConversationEventPayload{Conversation: conv}))
		case errors.Is(err, ErrCapacityExceeded):
			log.Printf("[Router] assign-on-reply skipped: agent %s at capacity", agentID)
		case errors.Is(err, ErrAlreadyAssigned):
			// Lost a concurrent claim; the reply still goes through.
		default:
			log.Printf("[Router] assign-on-reply failed for %s: %v", conversationID, err)
		}
	}

	at := s.now()
	if conv.FirstResponseAt == nil {
		stamped, err := s.convs.SetFirstResponseAt(ctx, conversationID, at)
		if err != nil {
			log.Printf("[Router] first-response stamp failed for %s: %v", conversationID, err)
		} else if stamped {
			conv.FirstResponseAt = &at
			if err := s.lifecycle.recompute(ctx, conv); err != nil {
				log.Printf("[Router] SLA recompute failed for %s: %v", conversationID, err)
			}
			if agentID != "" {
				if err := s.agents.RecordResponseTime(ctx, agentID, at.Sub(conv.CreatedAt).Seconds()); err != nil {
					log.Printf("[Router] response-time update failed for agent %s: %v", agentID, err)
				}
			}
		}
	}

	msg, err := s.msgs.Insert(ctx, &model.Message{
		ConversationID: conversationID,
		SenderKind:     model.SenderAgent,
		SenderID:       agentID,
		SenderName:     agentName,
		Body:           content,
		Kind:           kind,
		IsRead:         true,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.convs.TouchLastMessage(ctx, conversationID, at); err != nil {
		log.Printf("[Router] last-message bump failed for %s: %v", conversationID, err)
	}
	conv.LastMessageAt = &at

	s.fanOut(conv, msg)
	if s.metrics != nil {
		s.metrics.MessagesRouted.WithLabelValues(string(model.SenderAgent)).Inc()
	}
	return conv, msg, nil
}

// AgentJoinConversation subscribes an agent to a conversation's traffic and
// marks the visitor's unread messages as read. The receipt goes to the whole
// conversation room on purpose: the visitor's widget uses it to flip its
// "seen" indicator, other watching agents use it to drop their unread badge.
// It returns the conversation and transcript for the joining agent.
func (s *RouterService) AgentJoinConversation(ctx context.Context, conversationID, agentID string) (*model.Conversation, []model.Message, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, notFound(err)
	}

	count, err := s.msgs.MarkVisitorMessagesRead(ctx, conversationID, s.now())
	if err != nil {
		log.Printf("[Router] mark-read failed for %s: %v", conversationID, err)
	} else if count > 0 {
		s.hub.ToRoom(ConvRoom(conversationID), model.NewEvent(model.EvMessagesRead, model.MessagesReadPayload{
			ConversationID: conversationID,
			AgentID:        agentID,
			Count:          int(count),
		}))
	}

	msgs, err := s.msgs.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Transcript loads a conversation and its messages for a (re)joining
// visitor.
func (s *RouterService) Transcript(ctx context.Context, conversationID string) (*model.Conversation, []model.Message, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	msgs, err := s.msgs.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// fanOut delivers a new message to the conversation room (visitor plus any
// agents watching it) and the site-wide agent room.
func (s *RouterService) fanOut(conv *model.Conversation, msg *model.Message) {
	event := model.NewEvent(model.EvNewMessage, model.NewMessagePayload{Message: msg, Conversation: conv})
	s.hub.ToRoom(ConvRoom(conv.ID), event)
	s.hub.ToRoom(SiteRoom(conv.SiteID), event)
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
