// Package kafka publishes rent events to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// keyed events are hashed to a partition by their key, so one tenant's
// events keep their order.
type keyed interface {
	EventKey() string
}

type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a publisher for the given brokers. The topic is chosen
// per message.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	msg, err := newMessage(topic, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(topic string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := kafka.Message{Topic: topic, Value: data}
	if k, ok := event.(keyed); ok {
		msg.Key = []byte(k.EventKey())
	}
	return msg, nil
}
