// Package detect evaluates signals against the active detection rule set.
package detect

import (
	"time"

	"github.com/google/uuid"

	"redblue-core/internal/rules"
	"redblue-core/internal/schema"
)

// Match is the result of one detection rule firing against one signal.
// Matches are transient: they flow from the matcher into the aggregator and
// are not persisted standalone.
type Match struct {
	MatchID   uuid.UUID      `json:"match_id"`
	RuleID    string         `json:"rule_id"`
	SignalID  uuid.UUID      `json:"signal_id"`
	Severity  rules.Severity `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
}

// RuleSource supplies the active rule set. Satisfied by *rules.Store.
type RuleSource interface {
	ActiveRules() []*rules.DetectionRule
}

// Matcher evaluates signals against active rules. It holds no mutable state
// of its own and is safe for concurrent use.
type Matcher struct {
	rules RuleSource
}

// NewMatcher creates a Matcher over the given rule source.
func NewMatcher(source RuleSource) *Matcher {
	return &Matcher{rules: source}
}

// Match evaluates a signal against every active rule and returns one Match
// per firing rule, in rule order. Evaluation is pure: identical (signal,
// rule set) inputs always produce identical matches apart from the
// generated match ids.
func (m *Matcher) Match(sig *schema.Signal) []Match {
	active := m.rules.ActiveRules()

	var matches []Match
	for _, rule := range active {
		if !rule.Condition.Match(sig.Field) {
			continue
		}
		matches = append(matches, Match{
			MatchID:   uuid.New(),
			RuleID:    rule.ID,
			SignalID:  sig.SignalID,
			Severity:  rule.Severity,
			Timestamp: sig.Timestamp,
		})
	}
	return matches
}
