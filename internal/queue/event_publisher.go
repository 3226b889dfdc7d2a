package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes provider webhooks to the call event topic.
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher constructs a publisher for the given topic.
func NewEventPublisher(k *Kafka, topic string) *EventPublisher {
	return &EventPublisher{writer: k.NewWriter(topic)}
}

// PublishCallEvent writes the event keyed by lead id so a lead's events stay ordered.
func (p *EventPublisher) PublishCallEvent(ctx context.Context, evt CallEvent) error {
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("event publisher: marshal message: %w", err)
	}
	key := evt.Call.Metadata.LeadID
	if key == "" {
		key = evt.Call.CallID
	}
	record := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  evt.ReceivedAt,
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("event publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
