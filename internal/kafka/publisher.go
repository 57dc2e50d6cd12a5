package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes order lifecycle events to Kafka, one topic per event type.
// Messages are keyed by order id so every event for an order lands on the
// same partition in order.
type Publisher struct {
	writer      messageWriter
	topicPrefix string
}

func NewPublisher(brokers []string, topicPrefix string) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topicPrefix)
}

func newPublisher(w messageWriter, topicPrefix string) *Publisher {
	return &Publisher{writer: w, topicPrefix: topicPrefix}
}

func (p *Publisher) Publish(ctx context.Context, event ports.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := kafkago.Message{
		Topic: p.Topic(event.Type),
		Key:   []byte(event.OrderID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

// Topic returns the topic an event type is published to.
func (p *Publisher) Topic(eventType ports.EventType) string {
	return p.topicPrefix + string(eventType)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
