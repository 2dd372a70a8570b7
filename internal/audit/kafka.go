package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"gtipricing/backend/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each audit as a JSON message keyed by customer id so a
// customer's audits stay ordered within one partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: NewKafkaWriter(brokers, topic)}
}

func (k *KafkaSink) Record(ctx context.Context, entry domain.PricingAudit) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode pricing audit: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("pricing-%s", entry.CustomerID)),
		Value: payload,
		Time:  entry.CreatedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish pricing audit %s: %w", entry.ID, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
