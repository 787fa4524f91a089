// Package kafka connects the correlation core to Kafka: a signal source
// feeding the ingest queue and an alert sink for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"redblue-core/internal/alert"
	"redblue-core/internal/config"
)

// AlertSink publishes alert updates to the alerts topic. It implements
// pipeline.Publisher.
type AlertSink struct {
	writer    *kafka.Writer
	published uint64
	errors    uint64
}

// NewAlertSink creates an AlertSink over the configured brokers.
func NewAlertSink(cfg config.KafkaConfig) *AlertSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AlertsTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Lz4,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	slog.Info("kafka alert sink initialized", "brokers", cfg.Brokers, "topic", cfg.AlertsTopic)
	return &AlertSink{writer: writer}
}

// Publish sends one alert snapshot, keyed by fingerprint so updates for the
// same alert stay ordered within a partition.
func (s *AlertSink) Publish(ctx context.Context, a *alert.Alert) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("kafka: marshal alert: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.Fingerprint),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		atomic.AddUint64(&s.errors, 1)
		return fmt.Errorf("kafka: write alert: %w", err)
	}

	atomic.AddUint64(&s.published, 1)
	return nil
}

// Metrics returns publish counters.
func (s *AlertSink) Metrics() SinkMetrics {
	return SinkMetrics{
		Published: atomic.LoadUint64(&s.published),
		Errors:    atomic.LoadUint64(&s.errors),
	}
}

// SinkMetrics holds alert sink counters.
type SinkMetrics struct {
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// Close flushes and closes the writer.
func (s *AlertSink) Close() error {
	return s.writer.Close()
}
