package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

type EventHandler func(event RequestEvent) error

// Consumer binds a durable queue to lifecycle routing keys and feeds events
// to a handler, with bounded redelivery on handler failure.
type Consumer struct {
	client      *RabbitMQClient
	queueName   string
	serviceName string
}

func NewConsumer(client *RabbitMQClient, queueName, serviceName string) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		serviceName: serviceName,
	}
}

func (c *Consumer) ConsumeEvents(routingKeys []string, handler EventHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("no connection to rabbitmq")
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	for _, routingKey := range routingKeys {
		err = channel.QueueBind(
			queue.Name,
			routingKey,
			c.client.config.Exchange,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("queue bind (%s): %w", routingKey, err)
		}
		log.Info().Str("queue", queue.Name).Str("routing_key", routingKey).
			Msg("queue bound")
	}

	messages, err := channel.Consume(
		queue.Name,
		c.serviceName,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume start: %w", err)
	}

	log.Info().Str("queue", queue.Name).Msg("consuming request events")

	go func() {
		for {
			select {
			case msg := <-messages:
				c.handleMessage(msg, handler)
			case <-c.client.ctx.Done():
				log.Info().Str("consumer", c.serviceName).Msg("consumer stopped")
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(msg amqp.Delivery, handler EventHandler) {
	var event RequestEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Error().Err(err).Msg("event deserialize failed")
		msg.Nack(false, false)
		return
	}

	if err := handler(event); err != nil {
		log.Error().Err(err).Str("event_type", event.EventType).
			Msg("event handler failed")

		if c.shouldRetry(msg) {
			c.republishWithRetry(msg, event)
		} else {
			log.Warn().Str("event_type", event.EventType).
				Msg("max retries reached, dead-lettering event")
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
}

func (c *Consumer) shouldRetry(msg amqp.Delivery) bool {
	if xDeath, ok := msg.Headers["x-death"]; ok {
		if deathArray, ok := xDeath.([]interface{}); ok && len(deathArray) > 0 {
			if death, ok := deathArray[0].(amqp.Table); ok {
				if count, ok := death["count"]; ok {
					if retryCount, ok := count.(int64); ok && retryCount >= 3 {
						return false
					}
				}
			}
		}
	}
	return true
}

func (c *Consumer) republishWithRetry(msg amqp.Delivery, event RequestEvent) {
	channel := c.client.Channel()

	time.Sleep(2 * time.Second)

	err := channel.Publish(
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: msg.DeliveryMode,
			Headers:      msg.Headers,
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("retry publish failed")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
	log.Info().Str("event_type", event.EventType).Msg("event re-published for retry")
}
