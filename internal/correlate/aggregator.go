package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"redblue-core/internal/alert"
	"redblue-core/internal/detect"
	"redblue-core/internal/rules"
	"redblue-core/internal/schema"
)

// Config configures the aggregator.
type Config struct {
	// DedupWindow is the span within which matches against the same
	// fingerprint aggregate into one alert instead of spawning a new one.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		DedupWindow: 24 * time.Hour,
	}
}

// Aggregator converts matches into alert records, deduplicating against
// existing open alerts by fingerprint within the dedup window.
//
// Reopening policy: a match against a resolved alert inside the dedup
// window reopens it (status moves back to new). Closed alerts are terminal;
// a match whose fingerprint last belonged to a closed alert creates a fresh
// alert. An open alert whose last update predates the dedup window is
// superseded: a new alert takes over the fingerprint's dedup slot.
type Aggregator struct {
	config Config
	alerts *alert.Store
	rules  *rules.Store
}

// NewAggregator creates an Aggregator over the given stores.
func NewAggregator(cfg Config, alerts *alert.Store, ruleStore *rules.Store) *Aggregator {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig().DedupWindow
	}
	return &Aggregator{
		config: cfg,
		alerts: alerts,
		rules:  ruleStore,
	}
}

// Ingest applies all matches produced for one signal and returns the alerts
// created or updated as a result, one per distinct fingerprint.
//
// Cancellation is checked once on entry; past that point the body performs
// no blocking operations and runs to completion, so a cancelled ingest never
// leaves a partial set of fingerprint updates visible.
func (g *Aggregator) Ingest(ctx context.Context, sig *schema.Signal, matches []detect.Match) ([]*alert.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	// Resolve all rules up front so an unknown rule id fails the whole
	// signal before any store mutation.
	matchRules := make([]*rules.DetectionRule, len(matches))
	for i, m := range matches {
		rule, err := g.rules.Get(m.RuleID)
		if err != nil {
			return nil, fmt.Errorf("%w: match references unknown rule %q",
				alert.ErrValidation, m.RuleID)
		}
		matchRules[i] = rule
	}

	// Matches with distinct rule ids map to distinct fingerprints: one
	// signal can create or update several alerts.
	type group struct {
		rule    *rules.DetectionRule
		matches []detect.Match
	}
	order := make([]string, 0, len(matches))
	groups := make(map[string]*group, len(matches))
	for i, m := range matches {
		fp := Fingerprint(sig.Source, sig.Target, m.RuleID)
		gr, ok := groups[fp]
		if !ok {
			gr = &group{rule: matchRules[i]}
			groups[fp] = gr
			order = append(order, fp)
		}
		gr.matches = append(gr.matches, m)
	}

	now := time.Now().UTC()
	results := make([]*alert.Alert, 0, len(order))

	for _, fp := range order {
		gr := groups[fp]
		updated, err := g.alerts.UpsertByFingerprint(ctx, fp, func(existing *alert.Alert) (*alert.Alert, error) {
			if existing == nil || now.Sub(existing.UpdatedAt) > g.config.DedupWindow {
				return g.newAlert(sig, gr.rule, gr.matches), nil
			}
			for _, m := range gr.matches {
				existing.MatchIDs = append(existing.MatchIDs, m.MatchID)
				existing.MatchCount++
				existing.Severity = rules.MaxSeverity(existing.Severity, m.Severity)
			}
			if existing.Status == alert.StatusResolved {
				existing.Status = alert.StatusNew
			}
			return existing, nil
		})
		if err != nil {
			return results, err
		}
		results = append(results, updated)
	}

	slog.Debug("signal aggregated",
		"signal_id", sig.SignalID,
		"matches", len(matches),
		"alerts", len(results),
	)
	return results, nil
}

func (g *Aggregator) newAlert(sig *schema.Signal, rule *rules.DetectionRule, matches []detect.Match) *alert.Alert {
	a := &alert.Alert{
		Title:       rule.Name,
		Description: rule.Description,
		Severity:    matches[0].Severity,
		Status:      alert.StatusNew,
		RuleID:      rule.ID,
		Source:      sig.Source,
		Target:      sig.Target,
	}
	if a.Description == "" {
		a.Description = fmt.Sprintf("rule %s fired on %s", rule.ID, sig.Target)
	}
	for _, m := range matches {
		a.MatchIDs = append(a.MatchIDs, m.MatchID)
		a.MatchCount++
		a.Severity = rules.MaxSeverity(a.Severity, m.Severity)
	}
	return a
}
