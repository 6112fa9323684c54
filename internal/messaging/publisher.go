package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/naftal-tire/allocation-service/internal/domain"
)

// Publisher pushes request lifecycle events to the topic exchange. It
// satisfies domain.EventPublisher.
type Publisher struct {
	client      *RabbitMQClient
	serviceName string
}

func NewPublisher(client *RabbitMQClient, serviceName string) *Publisher {
	return &Publisher{client: client, serviceName: serviceName}
}

func (p *Publisher) PublishRequestEvent(ctx context.Context, eventType string, req *domain.TireRequest, note string) error {
	event := RequestEvent{
		ID:        uuid.New(),
		RequestID: req.ID,
		UserID:    req.UserID,
		StationID: req.StationID,
		TireID:    req.TireID,
		EventType: eventType,
		Status:    string(req.Status),
		Quantity:  req.Quantity,
		Note:      note,
		Timestamp: time.Now(),
		Service:   p.serviceName,
	}
	return p.PublishWithRetry(event, 3)
}

func (p *Publisher) publish(event RequestEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("no connection to rabbitmq")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization: %w", err)
	}

	routingKey := fmt.Sprintf("allocation.%s.%s", event.Service, event.EventType)

	err = p.client.Channel().Publish(
		p.client.config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.Timestamp,
			Headers: amqp.Table{
				"request_id": event.RequestID.String(),
				"user_id":    event.UserID.String(),
				"station_id": event.StationID.String(),
				"service":    event.Service,
				"event_type": event.EventType,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish: %w", err)
	}

	log.Debug().Str("routing_key", routingKey).Msg("request event published")
	return nil
}

// PublishWithRetry re-attempts transient publish failures before giving up.
func (p *Publisher) PublishWithRetry(event RequestEvent, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := p.publish(event); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxRetries).
				Msg("event publish retry")
			time.Sleep(time.Second * time.Duration(i+1))
			continue
		}
		return nil
	}
	return fmt.Errorf("publish failed after %d retries: %w", maxRetries, lastErr)
}
