// Package stats computes read-only aggregate views over the alert store.
package stats

import (
	"time"

	"redblue-core/internal/alert"
	"redblue-core/internal/rules"
)

// Summary is a point-in-time aggregate of the alert population.
type Summary struct {
	Total       int                    `json:"total"`
	Open        int                    `json:"open"`
	BySeverity  map[rules.Severity]int `json:"by_severity"`
	ByStatus    map[alert.Status]int   `json:"by_status"`
	ByRule      map[string]int         `json:"by_rule"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Engine derives statistics from alert store snapshots. It holds no state
// and every call observes the store at the moment of the call.
type Engine struct {
	alerts *alert.Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(alerts *alert.Store) *Engine {
	return &Engine{alerts: alerts}
}

// Summary counts alerts by severity, status and originating rule.
func (e *Engine) Summary() Summary {
	snap := e.alerts.Snapshot()
	s := Summary{
		Total:       len(snap),
		BySeverity:  make(map[rules.Severity]int),
		ByStatus:    make(map[alert.Status]int),
		ByRule:      make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}
	for _, a := range snap {
		s.BySeverity[a.Severity]++
		s.ByStatus[a.Status]++
		if a.RuleID != "" {
			s.ByRule[a.RuleID]++
		}
		if a.Status == alert.StatusNew || a.Status == alert.StatusInvestigating {
			s.Open++
		}
	}
	return s
}

// Rate returns alerts created per minute over the trailing window. A window
// of zero or less returns zero.
func (e *Engine) Rate(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-window)
	var created int
	for _, a := range e.alerts.Snapshot() {
		if !a.CreatedAt.Before(cutoff) {
			created++
		}
	}
	return float64(created) / window.Minutes()
}
