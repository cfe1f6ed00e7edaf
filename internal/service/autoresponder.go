package service

import (
	"context"
	"log"
	"time"

	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/model"
)

// AutoResponder answers visitor messages from the site's FAQ corpus before
// a human gets to them. Everything here is best-effort: any failure is
// logged and swallowed so the visitor's own message is never affected.
type AutoResponder struct {
	faqs     FAQStore
	msgs     MessageStore
	convs    ConversationStore
	hub      Broadcaster
	metrics  *metrics.Metrics
	minScore float64
	now      func() time.Time
}

const botName = "Support Bot"

func NewAutoResponder(faqs FAQStore, msgs MessageStore, convs ConversationStore, hub Broadcaster, m *metrics.Metrics, minScore float64) *AutoResponder {
	if minScore <= 0 {
		minScore = 0.1
	}
	return &AutoResponder{
		faqs:     faqs,
		msgs:     msgs,
		convs:    convs,
		hub:      hub,
		metrics:  m,
		minScore: minScore,
		now:      time.Now,
	}
}

// Respond scores the visitor's text against the active FAQ set and injects
// a bot reply when the top match clears the threshold. Assignment and SLA
// state are untouched; a bot reply is not a first response.
func (a *AutoResponder) Respond(ctx context.Context, conv *model.Conversation, content string) {
	matches, err := a.faqs.Search(ctx, conv.SiteID, content, 1)
	if err != nil {
		log.Printf("[AutoResponder] FAQ search failed for %s: %v", conv.ID, err)
		return
	}
	if len(matches) == 0 || matches[0].Score < a.minScore {
		if a.metrics != nil {
			a.metrics.AutoResponseMisses.Inc()
		}
		return
	}
	top := matches[0]

	msg, err := a.msgs.Insert(ctx, &model.Message{
		ConversationID: conv.ID,
		SenderKind:     model.SenderBot,
		SenderName:     botName,
		Body:           top.FAQ.Answer,
		Kind:           model.MessageText,
		IsRead:         true,
	})
	if err != nil {
		log.Printf("[AutoResponder] persist failed for %s: %v", conv.ID, err)
		return
	}

	if err := a.faqs.IncrementViews(ctx, top.FAQ.ID); err != nil {
		log.Printf("[AutoResponder] view counter failed for FAQ %s: %v", top.FAQ.ID, err)
	}

	at := a.now()
	if err := a.convs.TouchLastMessage(ctx, conv.ID, at); err != nil {
		log.Printf("[AutoResponder] last-message bump failed for %s: %v", conv.ID, err)
	}

	event := model.NewEvent(model.EvNewMessage, model.NewMessagePayload{Message: msg, Conversation: conv})
	a.hub.ToRoom(ConvRoom(conv.ID), event)
	a.hub.ToRoom(SiteRoom(conv.SiteID), event)

	if a.metrics != nil {
		a.metrics.AutoResponses.Inc()
	}
	log.Printf("[AutoResponder] answered conversation %s with FAQ %s (score %.3f)", conv.ID, top.FAQ.ID, top.Score)
}
