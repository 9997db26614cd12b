package kafka

import (
	"context"
	"encoding/json"
	"log"

	"ms-pricing/internal/models"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes booking cancellation events until the context is done.
// Each event triggers a compensating release of the booking's rule usage.
func (c *Consumer) Start(ctx context.Context, handler func(event models.BookingCancelledEvent)) {
	log.Println("Kafka consumer started for booking cancellations")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading message: %v", err)
			continue
		}

		var event models.BookingCancelledEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("Failed to unmarshal booking cancellation: %v", err)
			continue
		}

		log.Printf("Received booking cancellation: booking=%s", event.BookingID)
		handler(event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
