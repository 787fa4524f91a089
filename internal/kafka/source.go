package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"redblue-core/internal/config"
	"redblue-core/internal/queue"
	"redblue-core/internal/schema"
)

// SignalSource consumes signals from the signals topic and feeds them into
// the ingest queue, alongside the HTTP ingestion path.
type SignalSource struct {
	reader    *kafka.Reader
	validator *schema.Validator
	queue     *queue.RingBuffer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	consumed uint64
	rejected uint64
}

// NewSignalSource creates a SignalSource over the configured brokers.
func NewSignalSource(cfg config.KafkaConfig, validator *schema.Validator, q *queue.RingBuffer) *SignalSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.SignalsTopic,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	slog.Info("kafka signal source initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.SignalsTopic,
		"group", cfg.GroupID,
	)
	return &SignalSource{
		reader:    reader,
		validator: validator,
		queue:     q,
	}
}

// Start launches the consume loop.
func (s *SignalSource) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SignalSource) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("kafka read failed", "error", err)
			continue
		}

		var sig schema.Signal
		if err := json.Unmarshal(msg.Value, &sig); err != nil {
			atomic.AddUint64(&s.rejected, 1)
			slog.Warn("dropping malformed kafka signal", "offset", msg.Offset, "error", err)
			continue
		}
		if sig.ReceivedAt.IsZero() {
			sig.ReceivedAt = time.Now().UTC()
		}
		if sig.SchemaVersion == "" {
			sig.SchemaVersion = schema.SchemaVersionCurrent
		}

		if err := s.validator.Validate(&sig); err != nil {
			atomic.AddUint64(&s.rejected, 1)
			slog.Warn("dropping invalid kafka signal", "offset", msg.Offset, "error", err)
			continue
		}

		if err := s.queue.Push(&sig); err != nil {
			atomic.AddUint64(&s.rejected, 1)
			slog.Warn("dropping kafka signal, queue unavailable", "error", err)
			continue
		}
		atomic.AddUint64(&s.consumed, 1)
	}
}

// Metrics returns consume counters.
func (s *SignalSource) Metrics() SourceMetrics {
	return SourceMetrics{
		Consumed: atomic.LoadUint64(&s.consumed),
		Rejected: atomic.LoadUint64(&s.rejected),
	}
}

// SourceMetrics holds signal source counters.
type SourceMetrics struct {
	Consumed uint64 `json:"consumed"`
	Rejected uint64 `json:"rejected"`
}

// Close stops the consume loop and closes the reader.
func (s *SignalSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.reader.Close()
}
