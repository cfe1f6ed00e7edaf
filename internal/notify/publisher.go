// Package notify publishes helpdesk events to an AMQP topic exchange so
// external systems (pagers, CRM sync, reporting) can subscribe. The core
// treats the bus as best-effort: publish failures are logged by callers and
// never fail the operation that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys on the topic exchange.
const (
	KeyBreachFirstResponse  = "sla.breach.first_response"
	KeyBreachResolution     = "sla.breach.resolution"
	KeyConversationResolved = "conversation.resolved"
)

// Envelope is the wire frame for every published event.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	SiteID     string      `json:"site_id"`
	Payload    interface{} `json:"payload"`
}

func NewEnvelope(eventType, siteID string, payload interface{}) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		SiteID:     siteID,
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// New connects to the broker and declares the topic exchange. Publisher
// confirms are enabled so a nacked publish surfaces as an error.
func New(url, exchange string) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &rmqPublisher{conn: conn, exchange: exchange}, nil
}

func (p *rmqPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("publish nacked by broker: key=%s", key)
	}
	return nil
}

func (p *rmqPublisher) Close() error {
	return p.conn.Close()
}

// fallbackPublisher is used when AMQP_URL is not configured; the core keeps
// working without a broker.
type fallbackPublisher struct{}

func NewFallback() Publisher {
	return &fallbackPublisher{}
}

func (p *fallbackPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	log.Printf("[Notify] no broker configured, skipped publish key=%s type=%s", key, env.Type)
	return nil
}

func (p *fallbackPublisher) Close() error {
	return nil
}
