package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/naftal-tire/allocation-service/internal/messaging"
)

// The worker turns request lifecycle events into notification intents.
// Actual delivery (SMS, email) is handled by an external channel; this
// process records what should be sent to whom.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Info().Msg("🚀 Starting Notification Worker...")

	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)
	if err := rabbitClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection failed")
	}
	defer rabbitClient.Close()

	consumer := messaging.NewConsumer(rabbitClient, "notification-worker-queue", "notification-worker")

	routingKeys := []string{
		"allocation.*.request.created",
		"allocation.*.request.status_changed",
		"allocation.*.request.cancelled",
		"allocation.*.request.delivered",
	}

	if err := consumer.ConsumeEvents(routingKeys, handleRequestEvent); err != nil {
		log.Fatal().Err(err).Msg("failed to start consuming")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("🛑 Notification Worker stopped")
}

func handleRequestEvent(event messaging.RequestEvent) error {
	log.Info().
		Str("event_type", event.EventType).
		Str("request_id", event.RequestID.String()).
		Str("user_id", event.UserID.String()).
		Str("status", event.Status).
		Int("quantity", event.Quantity).
		Msg("notification intent recorded")
	return nil
}
