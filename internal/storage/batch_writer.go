package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"redblue-core/internal/alert"
	"redblue-core/internal/config"
)

// Inserter persists a batch of alert snapshots. Implemented by *Client;
// tests substitute a fake.
type Inserter interface {
	InsertAlerts(ctx context.Context, alerts []*alert.Alert) error
}

// BatchWriter buffers alert snapshots and writes them to the archive in
// batches. It implements alert.Sink: Record never blocks on the network,
// full batches flush on a background goroutine.
type BatchWriter struct {
	inserter Inserter
	config   config.BatchWriterConfig

	buffer []*alert.Alert
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	// Metrics
	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewBatchWriter creates a BatchWriter and starts its flush timer.
func NewBatchWriter(inserter Inserter, cfg config.BatchWriterConfig) *BatchWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	bw := &BatchWriter{
		inserter: inserter,
		config:   cfg,
		buffer:   make([]*alert.Alert, 0, cfg.BatchSize),
	}
	bw.flushTimer = time.AfterFunc(cfg.FlushInterval, bw.timerFlush)
	return bw
}

// Record buffers an alert snapshot. Satisfies alert.Sink; called from the
// store's commit path, so it must return quickly.
func (bw *BatchWriter) Record(a *alert.Alert) {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return
	}
	bw.buffer = append(bw.buffer, a)
	full := len(bw.buffer) >= bw.config.BatchSize
	bw.mu.Unlock()

	if full {
		go func() {
			if err := bw.Flush(); err != nil {
				slog.Error("archive flush failed", "error", err)
			}
		}()
	}
}

func (bw *BatchWriter) timerFlush() {
	if err := bw.Flush(); err != nil {
		slog.Error("archive timer flush failed", "error", err)
	}

	bw.mu.Lock()
	if !bw.closed {
		bw.flushTimer.Reset(bw.config.FlushInterval)
	}
	bw.mu.Unlock()
}

// Flush writes the buffered snapshots, retrying failed inserts with a
// linear backoff before giving the batch up.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]*alert.Alert, 0, bw.config.BatchSize)
	bw.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := bw.inserter.InsertAlerts(ctx, batch)
		cancel()
		if err != nil {
			lastErr = err
			slog.Warn("archive insert failed, retrying",
				"attempt", attempt+1,
				"max_retries", bw.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&bw.totalWritten, uint64(len(batch)))
		atomic.AddUint64(&bw.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&bw.totalFailed, uint64(len(batch)))
	return WrapInsertError("alerts_archive", lastErr, bw.config.MaxRetries)
}

// Close stops the timer and flushes remaining snapshots.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	bw.closed = true
	bw.mu.Unlock()

	bw.flushTimer.Stop()
	return bw.Flush()
}

// Metrics returns batch writer statistics.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	bw.mu.Lock()
	pending := len(bw.buffer)
	bw.mu.Unlock()

	return BatchWriterMetrics{
		Written: atomic.LoadUint64(&bw.totalWritten),
		Failed:  atomic.LoadUint64(&bw.totalFailed),
		Batches: atomic.LoadUint64(&bw.batchCount),
		Pending: pending,
	}
}

// BatchWriterMetrics holds batch writer statistics.
type BatchWriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}

// InsertAlerts writes alert snapshots into alerts_archive.
func (c *Client) InsertAlerts(ctx context.Context, alerts []*alert.Alert) error {
	batch, err := c.PrepareBatch(ctx, `
		INSERT INTO alerts_archive (
			alert_id, fingerprint, title, description,
			severity, status, rule_id, source, target,
			match_count, created_at, updated_at
		)
	`)
	if err != nil {
		return WrapInsertError("alerts_archive", err, 0)
	}

	for _, a := range alerts {
		if err := batch.Append(
			a.ID,
			a.Fingerprint,
			a.Title,
			a.Description,
			string(a.Severity),
			string(a.Status),
			a.RuleID,
			a.Source,
			a.Target,
			uint32(a.MatchCount),
			a.CreatedAt,
			a.UpdatedAt,
		); err != nil {
			return WrapInsertError("alerts_archive", err, 0)
		}
	}

	if err := batch.Send(); err != nil {
		return WrapInsertError("alerts_archive", err, 0)
	}

	slog.Debug("archive batch inserted", "count", len(alerts))
	return nil
}
