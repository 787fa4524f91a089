// Package pipeline runs the worker pool that turns queued signals into
// alerts.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"redblue-core/internal/alert"
	"redblue-core/internal/correlate"
	"redblue-core/internal/detect"
	"redblue-core/internal/queue"
	"redblue-core/internal/schema"
	"redblue-core/internal/telemetry"
)

// Config holds the pipeline configuration.
type Config struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		PollInterval: 10 * time.Millisecond,
		ShutdownWait: 30 * time.Second,
	}
}

// Publisher forwards alert updates to an external sink such as a Kafka
// topic. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, a *alert.Alert) error
}

// Throttle rate-limits outbound notifications per key. Allow reports
// whether a notification for the key may go out now.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Pipeline pops signals from the queue and runs match then aggregate on a
// pool of workers. The same Process path serves synchronous ingestion.
type Pipeline struct {
	queue      *queue.RingBuffer
	matcher    *detect.Matcher
	aggregator *correlate.Aggregator
	config     Config

	publisher Publisher
	throttle  Throttle

	wg   sync.WaitGroup
	done chan struct{}

	// Metrics
	processed uint64
	matched   uint64
	errors    uint64
}

// New creates a Pipeline. Publisher and throttle are optional; a nil
// publisher disables outbound notifications.
func New(q *queue.RingBuffer, m *detect.Matcher, agg *correlate.Aggregator, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Pipeline{
		queue:      q,
		matcher:    m,
		aggregator: agg,
		config:     cfg,
		done:       make(chan struct{}),
	}
}

// SetPublisher attaches an outbound alert publisher, optionally gated by a
// throttle. Call before Start.
func (p *Pipeline) SetPublisher(pub Publisher, th Throttle) {
	p.publisher = pub
	p.throttle = th
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	slog.Info("pipeline started", "workers", p.config.Workers)
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	slog.Debug("pipeline worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("pipeline worker stopping (context)", "worker_id", id)
			return
		case <-p.done:
			slog.Debug("pipeline worker stopping (done)", "worker_id", id)
			return
		default:
			sig, err := p.queue.PopWithTimeout(p.config.PollInterval)
			if err != nil {
				if err == queue.ErrQueueEmpty {
					continue
				}
				if err == queue.ErrQueueClosed {
					return
				}
				slog.Warn("unexpected queue error", "worker_id", id, "error", err)
				atomic.AddUint64(&p.errors, 1)
				continue
			}

			if _, err := p.Process(ctx, sig); err != nil {
				slog.Error("signal processing failed",
					"worker_id", id,
					"signal_id", sig.SignalID,
					"error", err,
				)
				atomic.AddUint64(&p.errors, 1)
			}
		}
	}
}

// Process runs one signal through match and aggregate, returning the alerts
// created or updated. Safe for concurrent use; the synchronous ingestion
// endpoint calls it directly.
func (p *Pipeline) Process(ctx context.Context, sig *schema.Signal) ([]*alert.Alert, error) {
	matches := p.matcher.Match(sig)
	atomic.AddUint64(&p.processed, 1)
	if len(matches) == 0 {
		return nil, nil
	}
	atomic.AddUint64(&p.matched, uint64(len(matches)))
	for _, m := range matches {
		telemetry.MatchesTotal.WithLabelValues(m.RuleID).Inc()
	}

	alerts, err := p.aggregator.Ingest(ctx, sig, matches)
	if err != nil {
		return alerts, err
	}
	for _, a := range alerts {
		if a.MatchCount == 1 {
			telemetry.AlertsCreated.WithLabelValues(string(a.Severity)).Inc()
		} else {
			telemetry.AlertsUpdated.WithLabelValues(string(a.Severity)).Inc()
		}
		p.publish(ctx, a)
	}
	return alerts, nil
}

// publish forwards an alert update to the configured publisher. Publish
// failures are logged, never propagated: correlation already succeeded.
func (p *Pipeline) publish(ctx context.Context, a *alert.Alert) {
	if p.publisher == nil {
		return
	}
	if p.throttle != nil {
		ok, err := p.throttle.Allow(ctx, a.Fingerprint)
		if err != nil {
			slog.Warn("notification throttle unavailable", "error", err)
		} else if !ok {
			return
		}
	}
	if err := p.publisher.Publish(ctx, a); err != nil {
		slog.Error("alert publish failed", "alert_id", a.ID, "error", err)
	}
}

// Stop shuts the worker pool down, waiting up to ShutdownWait.
func (p *Pipeline) Stop() {
	close(p.done)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("pipeline stopped gracefully")
	case <-time.After(p.config.ShutdownWait):
		slog.Warn("pipeline shutdown timed out")
	}
}

// Metrics returns pipeline statistics.
func (p *Pipeline) Metrics() PipelineMetrics {
	return PipelineMetrics{
		Processed: atomic.LoadUint64(&p.processed),
		Matched:   atomic.LoadUint64(&p.matched),
		Errors:    atomic.LoadUint64(&p.errors),
	}
}

// PipelineMetrics holds pipeline statistics.
type PipelineMetrics struct {
	Processed uint64 `json:"processed"`
	Matched   uint64 `json:"matched"`
	Errors    uint64 `json:"errors"`
}
