// Package notify – Kafka delivery hand-off.
//
// This file wraps a kafka-go writer for the delivery topic. Events are keyed
// by notification ID so the delivery worker can deduplicate redeliveries per
// record, matching the individually-retryable semantics of the fan-out.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeliveryEvent is the message handed to the delivery workers. It carries a
// full copy of the record so workers do not need a read path into the
// pipeline database.
type DeliveryEvent struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	Destination    string `json:"destination"`
	Message        string `json:"message"`
}

// Producer wraps the Kafka writer for the delivery topic.
type Producer struct {
	w *kafka.Writer
}

// NewProducer configures a writer with conservative reliability settings:
// hash balancing on the event key, full-ISR acks, and bounded retries and
// timeouts so a broker outage degrades to the table-driven retry sweep
// instead of stalling dispatch.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close releases the writer.
func (p *Producer) Close() error { return p.w.Close() }

// Publish writes one delivery event, keyed by notification ID.
func (p *Producer) Publish(ctx context.Context, ev DeliveryEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.NotificationID),
		Value: b,
	})
}
