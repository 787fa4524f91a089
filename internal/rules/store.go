package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a rule id is unknown.
	ErrNotFound = errors.New("rules: not found")

	// ErrValidation is returned when a rule definition is malformed.
	ErrValidation = errors.New("rules: validation failed")
)

// Store holds versioned detection rules. Upserting a rule appends a new
// version instead of overwriting, preserving the full history. Reads vastly
// outnumber writes, so the store hands out immutable snapshots.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]*DetectionRule // id -> history, newest last
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{
		versions: make(map[string][]*DetectionRule),
	}
}

// Upsert validates the rule and publishes it as a new version.
// Returns the assigned version number.
func (s *Store) Upsert(rule *DetectionRule) (int, error) {
	if rule == nil {
		return 0, fmt.Errorf("%w: nil rule", ErrValidation)
	}
	if err := rule.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	clone := *rule

	s.mu.Lock()
	defer s.mu.Unlock()

	clone.Version = len(s.versions[clone.ID]) + 1
	clone.CreatedAt = time.Now().UTC()
	s.versions[clone.ID] = append(s.versions[clone.ID], &clone)

	slog.Info("published detection rule",
		"rule_id", clone.ID,
		"version", clone.Version,
		"severity", clone.Severity,
		"enabled", clone.Enabled,
	)
	return clone.Version, nil
}

// Get returns the latest version of a rule.
func (s *Store) Get(id string) (*DetectionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[id]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	clone := *history[len(history)-1]
	return &clone, nil
}

// Versions returns the full version history of a rule, oldest first.
func (s *Store) Versions(id string) ([]*DetectionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[id]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	out := make([]*DetectionRule, len(history))
	for i, r := range history {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

// ActiveRules returns the latest version of every enabled rule, ordered by
// rule id so matching is deterministic.
func (s *Store) ActiveRules() []*DetectionRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*DetectionRule
	for _, history := range s.versions {
		latest := history[len(history)-1]
		if latest.Enabled {
			clone := *latest
			active = append(active, &clone)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

// Len returns the number of distinct rule ids in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions)
}
