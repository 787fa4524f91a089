package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/alert"
	"redblue-core/internal/config"
)

type fakeInserter struct {
	mu       sync.Mutex
	batches  [][]*alert.Alert
	failures int
}

func (f *fakeInserter) InsertAlerts(_ context.Context, alerts []*alert.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("insert refused")
	}
	f.batches = append(f.batches, alerts)
	return nil
}

func (f *fakeInserter) inserted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func writerConfig() config.BatchWriterConfig {
	return config.BatchWriterConfig{
		BatchSize:     3,
		FlushInterval: time.Hour, // timer out of the picture unless a test wants it
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
	}
}

func archivedAlert() *alert.Alert {
	now := time.Now().UTC()
	return &alert.Alert{
		ID:          uuid.New(),
		Title:       "archived",
		Severity:    "high",
		Status:      alert.StatusNew,
		Fingerprint: "fp-archive",
		MatchCount:  1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBatchWriter_FlushOnDemand(t *testing.T) {
	ins := &fakeInserter{}
	bw := NewBatchWriter(ins, writerConfig())
	defer bw.Close()

	bw.Record(archivedAlert())
	bw.Record(archivedAlert())
	if ins.inserted() != 0 {
		t.Fatal("records below batch size flushed early")
	}

	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if ins.inserted() != 2 {
		t.Errorf("inserted = %d, want 2", ins.inserted())
	}
	m := bw.Metrics()
	if m.Written != 2 || m.Batches != 1 || m.Pending != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestBatchWriter_FullBatchFlushesAsync(t *testing.T) {
	ins := &fakeInserter{}
	bw := NewBatchWriter(ins, writerConfig())
	defer bw.Close()

	for i := 0; i < 3; i++ {
		bw.Record(archivedAlert())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && ins.inserted() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if ins.inserted() != 3 {
		t.Errorf("inserted = %d, want 3 after full batch", ins.inserted())
	}
}

func TestBatchWriter_RetriesThenSucceeds(t *testing.T) {
	ins := &fakeInserter{failures: 2}
	bw := NewBatchWriter(ins, writerConfig())
	defer bw.Close()

	bw.Record(archivedAlert())
	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush() error = %v, want success after retries", err)
	}
	if ins.inserted() != 1 {
		t.Errorf("inserted = %d, want 1", ins.inserted())
	}
}

func TestBatchWriter_GivesUpAfterMaxRetries(t *testing.T) {
	ins := &fakeInserter{failures: 10}
	bw := NewBatchWriter(ins, writerConfig())
	defer bw.Close()

	bw.Record(archivedAlert())
	err := bw.Flush()
	if err == nil {
		t.Fatal("Flush() succeeded, want failure after retries exhausted")
	}
	if !errors.Is(err, ErrBatchInsertFailed) {
		t.Errorf("error = %v, want ErrBatchInsertFailed", err)
	}
	if m := bw.Metrics(); m.Failed != 1 {
		t.Errorf("Failed = %d, want 1", m.Failed)
	}
}

func TestBatchWriter_CloseFlushesAndStops(t *testing.T) {
	ins := &fakeInserter{}
	bw := NewBatchWriter(ins, writerConfig())

	bw.Record(archivedAlert())
	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if ins.inserted() != 1 {
		t.Errorf("inserted = %d, want 1 after close", ins.inserted())
	}

	// Records after close are ignored.
	bw.Record(archivedAlert())
	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush() after close error = %v", err)
	}
	if ins.inserted() != 1 {
		t.Errorf("inserted = %d, want record after close dropped", ins.inserted())
	}
}

func TestBatchWriter_TimerFlush(t *testing.T) {
	ins := &fakeInserter{}
	cfg := writerConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	bw := NewBatchWriter(ins, cfg)
	defer bw.Close()

	bw.Record(archivedAlert())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && ins.inserted() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if ins.inserted() != 1 {
		t.Errorf("inserted = %d, want 1 via timer flush", ins.inserted())
	}
}

func TestMigrationLoading(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations found")
	}
	if migrations[0].Version != 1 || migrations[0].Name != "alerts_archive" {
		t.Errorf("first migration = %+v", migrations[0])
	}
	stmts := splitStatements(migrations[0].SQL)
	if len(stmts) != 1 {
		t.Errorf("splitStatements() returned %d statements, want 1", len(stmts))
	}
}

func TestParseMigrationName(t *testing.T) {
	version, name, err := parseMigrationName("042_add_index.sql")
	if err != nil || version != 42 || name != "add_index" {
		t.Errorf("parseMigrationName() = %d %q %v", version, name, err)
	}
	if _, _, err := parseMigrationName("nodigits.sql"); err == nil {
		t.Error("malformed name accepted")
	}
}
