package alert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"redblue-core/internal/rules"
)

func newAlert(title, fingerprint string, severity rules.Severity) *Alert {
	return &Alert{
		Title:       title,
		Description: "test alert",
		Severity:    severity,
		Fingerprint: fingerprint,
	}
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	in := newAlert("SSH Brute Force", "fp-1", rules.SeverityHigh)
	in.Source = "ids.suricata"
	in.Target = "host-a"

	created, err := store.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("Create() must assign an id")
	}
	if created.Status != StatusNew {
		t.Errorf("Create() status = %v, want new", created.Status)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.Before(created.CreatedAt) {
		t.Errorf("Create() timestamps invalid: created=%v updated=%v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != in.Title || got.Description != in.Description ||
		got.Severity != in.Severity || got.Fingerprint != in.Fingerprint ||
		got.Source != in.Source || got.Target != in.Target {
		t.Errorf("Get() = %+v, want fields equal to created alert", got)
	}
}

func TestStore_CreateValidation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	t.Run("missing title", func(t *testing.T) {
		_, err := store.Create(ctx, newAlert("", "fp", rules.SeverityLow))
		if !IsValidation(err) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})

	t.Run("missing fingerprint", func(t *testing.T) {
		_, err := store.Create(ctx, newAlert("x", "", rules.SeverityLow))
		if !IsValidation(err) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})

	t.Run("bad severity", func(t *testing.T) {
		_, err := store.Create(ctx, newAlert("x", "fp", "urgent"))
		if !IsValidation(err) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})

	t.Run("duplicate open fingerprint", func(t *testing.T) {
		if _, err := store.Create(ctx, newAlert("first", "fp-dup", rules.SeverityLow)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		_, err := store.Create(ctx, newAlert("second", "fp-dup", rules.SeverityLow))
		if !IsConflict(err) {
			t.Errorf("Create() error = %v, want ErrConflict", err)
		}
	})
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get(uuid.New()); !IsNotFound(err) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateTransitions(t *testing.T) {
	ctx := context.Background()

	status := func(s Status) *Status { return &s }

	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"new to investigating", StatusNew, StatusInvestigating, false},
		{"investigating to resolved", StatusInvestigating, StatusResolved, false},
		{"resolved to closed", StatusResolved, StatusClosed, false},
		{"same status is a no-op", StatusNew, StatusNew, false},
		{"new to resolved skips investigating", StatusNew, StatusResolved, true},
		{"new to closed", StatusNew, StatusClosed, true},
		{"resolved to new requires aggregator", StatusResolved, StatusNew, true},
		{"closed is terminal", StatusClosed, StatusNew, true},
		{"closed to investigating", StatusClosed, StatusInvestigating, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			created, err := store.Create(ctx, newAlert("t", "fp-"+tt.name, rules.SeverityLow))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			// Walk the alert to the starting state through legal transitions.
			for _, step := range pathTo(tt.from) {
				if _, err := store.Update(ctx, created.ID, UpdateRequest{Status: status(step)}); err != nil {
					t.Fatalf("setup Update(%v) error = %v", step, err)
				}
			}

			updated, err := store.Update(ctx, created.ID, UpdateRequest{Status: status(tt.to)})
			if tt.wantErr {
				if !IsInvalidTransition(err) {
					t.Errorf("Update() error = %v, want ErrInvalidTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if updated.Status != tt.to {
				t.Errorf("Update() status = %v, want %v", updated.Status, tt.to)
			}
			if !updated.UpdatedAt.After(created.UpdatedAt) {
				t.Error("Update() must advance updated_at")
			}
		})
	}
}

// pathTo returns the legal transition chain from new to the target state.
func pathTo(target Status) []Status {
	switch target {
	case StatusInvestigating:
		return []Status{StatusInvestigating}
	case StatusResolved:
		return []Status{StatusInvestigating, StatusResolved}
	case StatusClosed:
		return []Status{StatusInvestigating, StatusResolved, StatusClosed}
	default:
		return nil
	}
}

func TestStore_UpdateValidation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, newAlert("t", "fp-uv", rules.SeverityLow))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bad := Status("dismissed")
	if _, err := store.Update(ctx, created.ID, UpdateRequest{Status: &bad}); !IsValidation(err) {
		t.Errorf("Update() with bad status error = %v, want ErrValidation", err)
	}

	badSev := rules.Severity("urgent")
	if _, err := store.Update(ctx, created.ID, UpdateRequest{Severity: &badSev}); !IsValidation(err) {
		t.Errorf("Update() with bad severity error = %v, want ErrValidation", err)
	}

	if _, err := store.Update(ctx, uuid.New(), UpdateRequest{}); !IsNotFound(err) {
		t.Errorf("Update() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	severities := []rules.Severity{
		rules.SeverityLow, rules.SeverityHigh, rules.SeverityHigh,
		rules.SeverityCritical, rules.SeverityMedium,
	}
	for i, sev := range severities {
		if _, err := store.Create(ctx, newAlert("alert", uuid.NewString(), sev)); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	t.Run("ordered by created_at descending", func(t *testing.T) {
		results := store.List(ListFilter{Limit: -1})
		if len(results) != len(severities) {
			t.Fatalf("List() returned %d, want %d", len(results), len(severities))
		}
		for i := 1; i < len(results); i++ {
			if results[i].CreatedAt.After(results[i-1].CreatedAt) {
				t.Error("List() must order by created_at descending")
			}
		}
	})

	t.Run("severity filter", func(t *testing.T) {
		high := rules.SeverityHigh
		results := store.List(ListFilter{Severity: &high, Limit: -1})
		if len(results) != 2 {
			t.Errorf("List(severity=high) returned %d, want 2", len(results))
		}
	})

	t.Run("filter with no matches is empty not error", func(t *testing.T) {
		investigating := StatusInvestigating
		results := store.List(ListFilter{Status: &investigating, Limit: -1})
		if len(results) != 0 {
			t.Errorf("List(status=investigating) returned %d, want 0", len(results))
		}
	})

	t.Run("limit zero returns empty", func(t *testing.T) {
		if results := store.List(ListFilter{Limit: 0}); len(results) != 0 {
			t.Errorf("List(limit=0) returned %d, want 0", len(results))
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		page1 := store.List(ListFilter{Limit: 2})
		page2 := store.List(ListFilter{Limit: 2, Offset: 2})
		if len(page1) != 2 || len(page2) != 2 {
			t.Fatalf("pagination sizes = %d, %d; want 2, 2", len(page1), len(page2))
		}
		if page1[0].ID == page2[0].ID {
			t.Error("pages must not overlap")
		}
	})

	t.Run("offset beyond end", func(t *testing.T) {
		if results := store.List(ListFilter{Limit: 10, Offset: 100}); len(results) != 0 {
			t.Errorf("List(offset beyond end) returned %d, want 0", len(results))
		}
	})
}

func TestStore_UpsertByFingerprintConcurrent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpsertByFingerprint(ctx, "fp-shared", func(existing *Alert) (*Alert, error) {
				if existing == nil {
					a := newAlert("Shared", "fp-shared", rules.SeverityMedium)
					a.Status = StatusNew
					a.MatchCount = 1
					return a, nil
				}
				existing.MatchCount++
				return existing, nil
			})
			if err != nil {
				t.Errorf("UpsertByFingerprint() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Exactly one alert, and no lost increments.
	results := store.List(ListFilter{Limit: -1})
	if len(results) != 1 {
		t.Fatalf("concurrent upserts produced %d alerts, want 1", len(results))
	}
	if results[0].MatchCount != workers {
		t.Errorf("match count = %d, want %d", results[0].MatchCount, workers)
	}
}

func TestStore_UpsertDistinctFingerprints(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	const fingerprints = 16

	var wg sync.WaitGroup
	for i := 0; i < fingerprints; i++ {
		fp := uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpsertByFingerprint(ctx, fp, func(existing *Alert) (*Alert, error) {
				a := newAlert("Distinct", fp, rules.SeverityLow)
				a.Status = StatusNew
				return a, nil
			})
			if err != nil {
				t.Errorf("UpsertByFingerprint() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != fingerprints {
		t.Errorf("store has %d alerts, want %d", store.Len(), fingerprints)
	}
}

func TestStore_UpsertCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.UpsertByFingerprint(ctx, "fp-c", func(existing *Alert) (*Alert, error) {
		t.Error("mutation must not run on a cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("UpsertByFingerprint() error = %v, want context.Canceled", err)
	}
	if store.Len() != 0 {
		t.Error("cancelled upsert must leave no state behind")
	}
}

func TestStore_ClosedLeavesOpenIndex(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, newAlert("t", "fp-close", rules.SeverityLow))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, step := range pathTo(StatusClosed) {
		s := step
		if _, err := store.Update(ctx, created.ID, UpdateRequest{Status: &s}); err != nil {
			t.Fatalf("Update(%v) error = %v", step, err)
		}
	}

	// Closed alerts are retained for audit.
	if _, err := store.Get(created.ID); err != nil {
		t.Errorf("closed alert must remain readable: %v", err)
	}

	// The fingerprint is free again: a create with the same fingerprint succeeds.
	if _, err := store.Create(ctx, newAlert("again", "fp-close", rules.SeverityLow)); err != nil {
		t.Errorf("Create() after close error = %v, want nil", err)
	}
}

func TestStore_CloseAfterSupersedeKeepsDedupSlot(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	const fp = "fp-supersede"

	first, err := store.UpsertByFingerprint(ctx, fp, func(existing *Alert) (*Alert, error) {
		a := newAlert("stale", fp, rules.SeverityLow)
		a.Status = StatusNew
		a.MatchCount = 1
		return a, nil
	})
	if err != nil {
		t.Fatalf("UpsertByFingerprint() error = %v", err)
	}

	// A firing outside the dedup window replaces the stale alert in the
	// dedup slot with a fresh one; the stale alert keeps its lifecycle.
	second, err := store.UpsertByFingerprint(ctx, fp, func(existing *Alert) (*Alert, error) {
		if existing == nil || existing.ID != first.ID {
			t.Fatalf("existing = %+v, want the stale alert", existing)
		}
		a := newAlert("fresh", fp, rules.SeverityMedium)
		a.Status = StatusNew
		a.MatchCount = 1
		return a, nil
	})
	if err != nil {
		t.Fatalf("UpsertByFingerprint() error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("supersession must create a new alert")
	}

	// Closing the superseded alert must not evict the fresh alert from
	// the open index.
	for _, step := range pathTo(StatusClosed) {
		s := step
		if _, err := store.Update(ctx, first.ID, UpdateRequest{Status: &s}); err != nil {
			t.Fatalf("Update(%v) error = %v", step, err)
		}
	}

	third, err := store.UpsertByFingerprint(ctx, fp, func(existing *Alert) (*Alert, error) {
		if existing == nil {
			t.Fatal("dedup slot lost after closing the superseded alert")
		}
		if existing.ID != second.ID {
			t.Fatalf("dedup landed on %s, want open alert %s", existing.ID, second.ID)
		}
		existing.MatchCount++
		return existing, nil
	})
	if err != nil {
		t.Fatalf("UpsertByFingerprint() error = %v", err)
	}
	if third.ID != second.ID || third.MatchCount != 2 {
		t.Errorf("upsert = %s count %d, want aggregation into %s count 2",
			third.ID, third.MatchCount, second.ID)
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d alerts, want 2", store.Len())
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.Create(ctx, newAlert("t", "fp-copy", rules.SeverityLow))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := store.Get(created.ID)
	got.Severity = rules.SeverityCritical
	got.MatchIDs = append(got.MatchIDs, uuid.New())

	again, _ := store.Get(created.ID)
	if again.Severity != rules.SeverityLow || len(again.MatchIDs) != 0 {
		t.Error("mutating a returned alert must not affect the store")
	}
}

type captureSink struct {
	mu      sync.Mutex
	records []*Alert
}

func (c *captureSink) Record(a *Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, a)
}

func TestStore_SinkReceivesMutations(t *testing.T) {
	store := NewStore()
	sink := &captureSink{}
	store.SetSink(sink)
	ctx := context.Background()

	created, err := store.Create(ctx, newAlert("t", "fp-sink", rules.SeverityLow))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	investigating := StatusInvestigating
	if _, err := store.Update(ctx, created.ID, UpdateRequest{Status: &investigating}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 2 {
		t.Fatalf("sink received %d records, want 2", len(sink.records))
	}
	if sink.records[1].Status != StatusInvestigating {
		t.Errorf("sink record status = %v, want investigating", sink.records[1].Status)
	}
}
