package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"smokealert/internal/config"
	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert")
)

// Writer is the subset of *kafka.Writer the producer uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes alert notifications to a Kafka topic, one message per alert,
// keyed by notification channel so a channel's alerts stay ordered.
type Producer struct {
	cfg     config.ProducerConfig
	brokers []string
	topic   string
	writers []Writer
	pool    chan Writer
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithWriters replaces the kafka writers, mainly for tests
func WithWriters(writers ...Writer) ProducerOption {
	return func(p *Producer) {
		p.writers = writers
	}
}

// NewProducer creates a new Kafka producer with the given configuration
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	p := &Producer{
		cfg:     cfg,
		brokers: brokers,
		topic:   topic,
	}

	for _, opt := range opts {
		opt(p)
	}

	if len(p.writers) == 0 {
		compression := getCompression(cfg.Compression)
		for i := 0; i < cfg.PoolSize; i++ {
			p.writers = append(p.writers, &kafka.Writer{
				Addr:                   kafka.TCP(brokers...),
				Topic:                  topic,
				Balancer:               &kafka.Hash{},
				BatchSize:              cfg.BatchSize,
				BatchTimeout:           cfg.BatchTimeout,
				WriteTimeout:           cfg.WriteTimeout,
				RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
				Compression:            compression,
				MaxAttempts:            1,
				AllowAutoTopicCreation: false,
			})
		}
	}

	p.pool = make(chan Writer, len(p.writers))
	for _, w := range p.writers {
		p.pool <- w
	}

	return p, nil
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Topic returns the topic alerts are written to
func (p *Producer) Topic() string {
	return p.topic
}

func toMessage(alert *models.Alert) (kafka.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	return kafka.Message{
		Key:   []byte(alert.ChannelID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(alert.ID)},
			{Key: "cycle_id", Value: []byte(alert.CycleID)},
			{Key: "priority", Value: []byte(alert.Priority)},
		},
		Time: alert.CreatedAt,
	}, nil
}

// Publish sends one alert
func (p *Producer) Publish(ctx context.Context, alert *models.Alert) error {
	return p.PublishBatch(ctx, []*models.Alert{alert})
}

// PublishBatch sends alerts in a single write. Alerts that cannot be serialized are
// skipped and counted as failed.
func (p *Producer) PublishBatch(ctx context.Context, alerts []*models.Alert) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(alerts) == 0 {
		return nil
	}

	log := logger.WithComponent("kafka_producer")

	messages := make([]kafka.Message, 0, len(alerts))
	for _, alert := range alerts {
		msg, err := toMessage(alert)
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to serialize alert")
			p.messagesFailed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return ErrSerializeFailed
	}

	var writer Writer
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(uint64(len(messages)))
		return ctx.Err()
	}

	if err := p.writeWithRetry(ctx, writer, messages); err != nil {
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	var size uint64
	for _, m := range messages {
		size += uint64(len(m.Value))
	}
	p.messagesSent.Add(uint64(len(messages)))
	p.bytesWritten.Add(size)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(messages)))

	log.Debug().Int("batch_size", len(messages)).Str("topic", p.topic).Msg("alerts published to kafka")
	return nil
}

// writeWithRetry writes with exponential backoff
func (p *Producer) writeWithRetry(ctx context.Context, writer Writer, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")
			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Int("attempts", p.cfg.MaxRetries+1).
		Int("batch_size", len(messages)).
		Msg("kafka publish failed after all retries")

	return fmt.Errorf("publish failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
	BytesWritten   uint64
}
