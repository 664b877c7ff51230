/*
kafka.go - Kafka-backed Publisher

PURPOSE:
  Writes entry events to one topic, keyed by channel id so a channel's
  events stay ordered within a partition.

LATENCY:
  Publish runs on the request path after the commit. The writer flushes
  every message immediately (BatchSize 1, short BatchTimeout) instead of
  waiting for kafka-go's default one second batch window.

CANCELLATION:
  The entry is already committed when Publish runs, so the write ignores
  caller cancellation and is bounded by PublishTimeout instead.

SEE ALSO:
  - events.go: Event payloads and delivery guarantee
  - config/config.go: TILL_KAFKA_* settings
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warp/channel-ledger/config"
)

const defaultPublishTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  newKafkaWriter(cfg),
		timeout: cfg.PublishTimeout,
	}
}

func newKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: batchTimeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: data,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
