package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-pricing/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// Publisher routes pricing lifecycle events to their topics.
type Publisher struct {
	Committed *Producer
	Released  *Producer
}

func NewPublisher(brokers []string, committedTopic, releasedTopic string) *Publisher {
	return &Publisher{
		Committed: NewProducer(brokers, committedTopic),
		Released:  NewProducer(brokers, releasedTopic),
	}
}

// PublishPricingCommitted streams a committed calculation to Kafka
func (p *Publisher) PublishPricingCommitted(event models.PricingCommittedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [pricing_committed]: %s\n", string(msgBytes))

	return p.Committed.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.BookingID),
			Value: msgBytes,
		},
	)
}

// PublishPricingReleased streams a compensating release to Kafka
func (p *Publisher) PublishPricingReleased(event models.PricingReleasedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [pricing_released]: %s\n", string(msgBytes))

	return p.Released.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.BookingID),
			Value: msgBytes,
		},
	)
}

func (p *Publisher) Close() error {
	if err := p.Committed.Writer.Close(); err != nil {
		return err
	}
	return p.Released.Writer.Close()
}
