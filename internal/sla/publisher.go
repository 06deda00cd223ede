package sla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/routedly/marketplace-be/shared/rabbitmq"
)

// eventMessage is the wire shape consumed by the notification service.
type eventMessage struct {
	EventID   string    `json:"event_id"`
	JobID     string    `json:"job_id"`
	EventType string    `json:"event_type"`
	Role      string    `json:"role"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BrokerPublisher pushes monitoring events to the RabbitMQ event exchange.
type BrokerPublisher struct {
	client *rabbitmq.Client
}

// NewBrokerPublisher wraps a connected RabbitMQ client.
func NewBrokerPublisher(client *rabbitmq.Client) *BrokerPublisher {
	return &BrokerPublisher{client: client}
}

// PublishEvent marshals and publishes one event. Callers treat failure as
// non-fatal; the events table remains the source of truth.
func (p *BrokerPublisher) PublishEvent(ctx context.Context, ev *Event) error {
	body, err := json.Marshal(eventMessage{
		EventID:   ev.EventID,
		JobID:     ev.JobID,
		EventType: string(ev.Type),
		Role:      ev.Role,
		UserID:    ev.UserID,
		CreatedAt: ev.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal monitoring event: %w", err)
	}

	return p.client.Publish(ctx, body, "application/json")
}
