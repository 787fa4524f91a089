// Package alert provides the authoritative alert store and lifecycle model.
package alert

import (
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/rules"
)

// Status represents the lifecycle state of an alert.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusClosed        Status = "closed"
)

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInvestigating, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Alert represents a managed alert. Alerts are owned exclusively by the
// Store and mutated only through its operations; the Store hands out copies.
type Alert struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    rules.Severity  `json:"severity"`
	Status      Status          `json:"status"`
	Fingerprint string          `json:"fingerprint"`
	RuleID      string          `json:"rule_id,omitempty"`
	Source      string          `json:"source,omitempty"`
	Target      string          `json:"target,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	MatchCount  int             `json:"match_count"`
	MatchIDs    []uuid.UUID     `json:"match_ids,omitempty"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
}

// TimelineEntry records one lifecycle event on an alert.
type TimelineEntry struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	clone := *a
	if a.MatchIDs != nil {
		clone.MatchIDs = make([]uuid.UUID, len(a.MatchIDs))
		copy(clone.MatchIDs, a.MatchIDs)
	}
	if a.Timeline != nil {
		clone.Timeline = make([]TimelineEntry, len(a.Timeline))
		copy(clone.Timeline, a.Timeline)
	}
	return &clone
}

// addTimeline appends a lifecycle event. Caller holds the store lock.
func (a *Alert) addTimeline(entryType, description string, at time.Time) {
	a.Timeline = append(a.Timeline, TimelineEntry{
		Type:        entryType,
		Description: description,
		Timestamp:   at,
	})
}

// canTransition reports whether status may move from one state to another.
// The lifecycle is new -> investigating -> resolved -> closed. The single
// backward edge, resolved -> new, belongs to the aggregator's reopen path.
func canTransition(from, to Status, reopen bool) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusNew:
		return to == StatusInvestigating
	case StatusInvestigating:
		return to == StatusResolved
	case StatusResolved:
		if to == StatusClosed {
			return true
		}
		return reopen && to == StatusNew
	case StatusClosed:
		return false
	}
	return false
}
