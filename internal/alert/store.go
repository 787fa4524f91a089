package alert

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/rules"
)

// stripeCount is the number of fingerprint lock partitions. Writes on
// distinct fingerprints land on different stripes and do not block each
// other; same-fingerprint writes serialize on one stripe.
const stripeCount = 64

// Sink receives a snapshot of every committed alert mutation. Used to feed
// the durable archive without coupling the store to storage details.
// Record must not block.
type Sink interface {
	Record(*Alert)
}

// Store is the authoritative table of alerts. All mutation goes through its
// operations; returned alerts are copies. Alerts are never physically
// deleted, closed alerts remain for audit and statistics.
type Store struct {
	mu      sync.RWMutex
	alerts  map[uuid.UUID]*Alert
	open    map[string]uuid.UUID // fingerprint -> alert with status != closed
	stripes [stripeCount]sync.Mutex
	sink    Sink
}

// NewStore creates an empty alert store.
func NewStore() *Store {
	return &Store{
		alerts: make(map[uuid.UUID]*Alert),
		open:   make(map[string]uuid.UUID),
	}
}

// SetSink attaches a mutation sink. Must be called before concurrent use.
func (s *Store) SetSink(sink Sink) {
	s.sink = sink
}

func (s *Store) stripe(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &s.stripes[h.Sum32()%stripeCount]
}

func (s *Store) record(a *Alert) {
	if s.sink != nil {
		s.sink.Record(a.Clone())
	}
}

// Create inserts a new alert. The id and timestamps are server-assigned.
// Fails with ErrConflict if an open alert with the same fingerprint exists.
func (s *Store) Create(ctx context.Context, a *Alert) (*Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a == nil || a.Title == "" {
		return nil, wrapErr("Create", "", fmt.Errorf("%w: title is required", ErrValidation))
	}
	if a.Fingerprint == "" {
		return nil, wrapErr("Create", "", fmt.Errorf("%w: fingerprint is required", ErrValidation))
	}
	if a.Severity != "" && !a.Severity.IsValid() {
		return nil, wrapErr("Create", "", fmt.Errorf("%w: invalid severity %q", ErrValidation, a.Severity))
	}
	if a.Status != "" && !a.Status.IsValid() {
		return nil, wrapErr("Create", "", fmt.Errorf("%w: invalid status %q", ErrValidation, a.Status))
	}

	clone := a.Clone()
	if clone.Severity == "" {
		clone.Severity = rules.SeverityLow
	}
	if clone.Status == "" {
		clone.Status = StatusNew
	}
	now := time.Now().UTC()
	clone.ID = uuid.New()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if clone.MatchCount == 0 {
		clone.MatchCount = len(clone.MatchIDs)
	}
	clone.addTimeline("created", "alert created", now)

	stripe := s.stripe(clone.Fingerprint)
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.Lock()
	if existing, ok := s.open[clone.Fingerprint]; ok {
		s.mu.Unlock()
		return nil, wrapErr("Create", clone.Fingerprint,
			fmt.Errorf("%w: open alert %s", ErrConflict, existing))
	}
	s.alerts[clone.ID] = clone
	if clone.Status != StatusClosed {
		s.open[clone.Fingerprint] = clone.ID
	}
	s.mu.Unlock()

	s.record(clone)
	slog.Info("alert created",
		"alert_id", clone.ID,
		"severity", clone.Severity,
		"fingerprint", clone.Fingerprint,
	)
	return clone.Clone(), nil
}

// Get retrieves an alert by id.
func (s *Store) Get(id uuid.UUID) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, wrapErr("Get", id.String(), ErrNotFound)
	}
	return a.Clone(), nil
}

// UpdateRequest holds the partial fields accepted by Update.
type UpdateRequest struct {
	Status   *Status         `json:"status,omitempty"`
	Severity *rules.Severity `json:"severity,omitempty"`
}

// Update applies a partial update to an alert. Status changes must follow
// the lifecycle machine; updated_at advances monotonically.
func (s *Store) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, wrapErr("Update", id.String(),
			fmt.Errorf("%w: invalid status %q", ErrValidation, *req.Status))
	}
	if req.Severity != nil && !req.Severity.IsValid() {
		return nil, wrapErr("Update", id.String(),
			fmt.Errorf("%w: invalid severity %q", ErrValidation, *req.Severity))
	}

	// The fingerprint never changes once an alert exists, so it is safe to
	// read it first and then take the stripe lock. Holding the stripe keeps
	// external updates serialized against aggregator upserts.
	s.mu.RLock()
	peek, ok := s.alerts[id]
	if !ok {
		s.mu.RUnlock()
		return nil, wrapErr("Update", id.String(), ErrNotFound)
	}
	fingerprint := peek.Fingerprint
	s.mu.RUnlock()

	stripe := s.stripe(fingerprint)
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.Lock()
	a, ok := s.alerts[id]
	if !ok {
		s.mu.Unlock()
		return nil, wrapErr("Update", id.String(), ErrNotFound)
	}

	if req.Status != nil && *req.Status != a.Status {
		if !canTransition(a.Status, *req.Status, false) {
			from := a.Status
			s.mu.Unlock()
			return nil, wrapErr("Update", id.String(),
				fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, *req.Status))
		}
	}

	now := monotonicNow(a.UpdatedAt)
	if req.Status != nil && *req.Status != a.Status {
		a.addTimeline("status_change",
			fmt.Sprintf("status changed from %s to %s", a.Status, *req.Status), now)
		a.Status = *req.Status
		if a.Status == StatusClosed {
			// A superseded alert no longer owns the dedup slot; only
			// evict the index entry if it still points at this alert.
			if openID, ok := s.open[a.Fingerprint]; ok && openID == a.ID {
				delete(s.open, a.Fingerprint)
			}
		}
	}
	if req.Severity != nil {
		a.Severity = *req.Severity
	}
	a.UpdatedAt = now

	clone := a.Clone()
	s.mu.Unlock()

	s.record(clone)
	return clone, nil
}

// ListFilter defines filters for listing alerts.
type ListFilter struct {
	Severity *rules.Severity
	Status   *Status
	Limit    int // 0 returns an empty list, negative means unlimited
	Offset   int
}

// List returns alerts ordered by created_at descending.
func (s *Store) List(filter ListFilter) []*Alert {
	if filter.Limit == 0 {
		return []*Alert{}
	}

	s.mu.RLock()
	results := make([]*Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if filter.Severity != nil && a.Severity != *filter.Severity {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		results = append(results, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID.String() > results[j].ID.String()
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return []*Alert{}
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results
}

// Snapshot returns a copy of every alert in the store, in no guaranteed
// order. Used by the statistics engine.
func (s *Store) Snapshot() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Clone())
	}
	return out
}

// Mutation is the read-modify-write callback used by UpsertByFingerprint.
// It receives a copy of the open alert for the fingerprint, or nil when none
// exists, and returns the desired state: a brand new alert (nil input or a
// deliberate replacement) or the modified copy. It must be pure apart from
// mutating its argument and must not block.
type Mutation func(existing *Alert) (*Alert, error)

// UpsertByFingerprint is the atomic read-modify-write primitive used by the
// aggregator. Concurrent calls for the same fingerprint serialize; calls for
// distinct fingerprints proceed in parallel. The reopen transition
// (resolved -> new) is permitted on this path only.
func (s *Store) UpsertByFingerprint(ctx context.Context, fingerprint string, mutate Mutation) (*Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fingerprint == "" {
		return nil, wrapErr("UpsertByFingerprint", "",
			fmt.Errorf("%w: fingerprint is required", ErrValidation))
	}

	stripe := s.stripe(fingerprint)
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.RLock()
	var existing *Alert
	if id, ok := s.open[fingerprint]; ok {
		existing = s.alerts[id].Clone()
	}
	s.mu.RUnlock()

	result, err := mutate(existing)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, wrapErr("UpsertByFingerprint", fingerprint,
			fmt.Errorf("%w: mutation returned no alert", ErrValidation))
	}
	if !result.Severity.IsValid() {
		return nil, wrapErr("UpsertByFingerprint", fingerprint,
			fmt.Errorf("%w: invalid severity %q", ErrValidation, result.Severity))
	}
	if !result.Status.IsValid() {
		return nil, wrapErr("UpsertByFingerprint", fingerprint,
			fmt.Errorf("%w: invalid status %q", ErrValidation, result.Status))
	}

	now := time.Now().UTC()

	if existing == nil || result.ID != existing.ID {
		// Create path.
		result.ID = uuid.New()
		result.Fingerprint = fingerprint
		result.CreatedAt = now
		result.UpdatedAt = now
		result.addTimeline("created", "alert created", now)

		s.mu.Lock()
		s.alerts[result.ID] = result
		if result.Status != StatusClosed {
			s.open[fingerprint] = result.ID
		}
		s.mu.Unlock()

		clone := result.Clone()
		s.record(clone)
		slog.Info("alert created",
			"alert_id", clone.ID,
			"severity", clone.Severity,
			"fingerprint", fingerprint,
		)
		return clone, nil
	}

	// Update path: fingerprint is stable for the lifetime of the alert.
	if !canTransition(existing.Status, result.Status, true) {
		return nil, wrapErr("UpsertByFingerprint", fingerprint,
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, result.Status))
	}
	result.Fingerprint = existing.Fingerprint
	result.CreatedAt = existing.CreatedAt
	result.UpdatedAt = monotonicNow(existing.UpdatedAt)
	if result.Status != existing.Status {
		result.addTimeline("status_change",
			fmt.Sprintf("status changed from %s to %s", existing.Status, result.Status),
			result.UpdatedAt)
	}

	s.mu.Lock()
	s.alerts[result.ID] = result
	if result.Status == StatusClosed {
		delete(s.open, fingerprint)
	} else {
		s.open[fingerprint] = result.ID
	}
	s.mu.Unlock()

	clone := result.Clone()
	s.record(clone)
	return clone, nil
}

// Len returns the number of alerts in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// monotonicNow returns the current time, nudged forward if the clock has
// not advanced past the previous update.
func monotonicNow(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}
