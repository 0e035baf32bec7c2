package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ternarybob/spectare/internal/interfaces"
	"github.com/ternarybob/spectare/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes dataset rows and debug records to Kafka
type Producer struct {
	records messageWriter
	debug   messageWriter
}

var _ interfaces.RecordSink = (*Producer)(nil)

// NewProducer creates a producer for the given brokers. debugTopic may be
// empty, in which case debug records are not published.
func NewProducer(brokers []string, topic, debugTopic string) *Producer {
	producer := &Producer{records: newWriter(brokers, topic)}
	if debugTopic != "" {
		producer.debug = newWriter(brokers, debugTopic)
	}
	return producer
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
}

// NewProducerWithWriters builds a producer using custom writers (tests)
func NewProducerWithWriters(records, debug messageWriter) *Producer {
	return &Producer{records: records, debug: debug}
}

// Publish writes a video record keyed by video id
func (p *Producer) Publish(ctx context.Context, record *models.VideoRecord) error {
	return write(ctx, p.records, record.ID, record)
}

// PublishDebug writes a debug record keyed by URL
func (p *Producer) PublishDebug(ctx context.Context, record *models.DebugRecord) error {
	if p.debug == nil {
		return nil
	}
	return write(ctx, p.debug, record.URL, record)
}

// Close shuts down the underlying writers
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []messageWriter{p.records, p.debug} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func write(ctx context.Context, w messageWriter, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish record %s: %w", key, err)
	}
	return nil
}
