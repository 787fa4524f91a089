// Package rules provides detection rule definitions and the versioned rule store.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Severity levels for rules and the alerts they produce.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns the severity as a comparable integer. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 4
	case SeverityHigh:
		return 7
	case SeverityCritical:
		return 10
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// DetectionRule represents one versioned detection rule. A published rule is
// immutable; edits to enabled or severity produce a new version in the store.
type DetectionRule struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Severity    Severity      `yaml:"severity" json:"severity"`
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Version     int           `yaml:"version,omitempty" json:"version"`
	Tags        []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	Techniques  []string      `yaml:"techniques,omitempty" json:"techniques,omitempty"`
	Condition   Condition     `yaml:"condition" json:"condition"`
	CreatedAt   time.Time     `yaml:"-" json:"created_at"`
}

// Condition is a filter over signal fields. Operators form a small closed
// set evaluated by a pure interpreter; "and"/"or" nest further conditions.
type Condition struct {
	Field    string      `yaml:"field,omitempty" json:"field,omitempty"`
	Operator string      `yaml:"operator,omitempty" json:"operator,omitempty"` // eq, ne, contains, prefix, gt, gte, lt, lte, in, exists
	Value    any         `yaml:"value,omitempty" json:"value,omitempty"`
	Values   []string    `yaml:"values,omitempty" json:"values,omitempty"` // For "in" operator
	And      []Condition `yaml:"and,omitempty" json:"and,omitempty"`
	Or       []Condition `yaml:"or,omitempty" json:"or,omitempty"`
}

var validOperators = map[string]bool{
	"eq": true, "ne": true, "contains": true, "prefix": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "exists": true,
}

// Validate validates the rule definition.
func (r *DetectionRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %q", r.Severity)
	}
	if err := r.Condition.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// Validate validates a condition tree.
func (c *Condition) Validate() error {
	composite := len(c.And) > 0 || len(c.Or) > 0

	if composite {
		if c.Field != "" || c.Operator != "" {
			return fmt.Errorf("composite condition cannot also carry a field match")
		}
		if len(c.And) > 0 && len(c.Or) > 0 {
			return fmt.Errorf("condition cannot mix and/or at the same level")
		}
		for i := range c.And {
			if err := c.And[i].Validate(); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		for i := range c.Or {
			if err := c.Or[i].Validate(); err != nil {
				return fmt.Errorf("or[%d]: %w", i, err)
			}
		}
		return nil
	}

	if c.Field == "" {
		return fmt.Errorf("field is required")
	}
	if c.Operator == "" {
		return fmt.Errorf("operator is required")
	}
	if !validOperators[c.Operator] {
		return fmt.Errorf("invalid operator: %s", c.Operator)
	}
	if c.Operator == "in" && len(c.Values) == 0 {
		return fmt.Errorf("values required for in operator")
	}
	return nil
}

// Match evaluates the condition against a field resolver. Evaluation is pure:
// identical inputs always yield identical results.
func (c *Condition) Match(resolve func(field string) any) bool {
	if len(c.And) > 0 {
		for i := range c.And {
			if !c.And[i].Match(resolve) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for i := range c.Or {
			if c.Or[i].Match(resolve) {
				return true
			}
		}
		return false
	}

	value := resolve(c.Field)

	switch c.Operator {
	case "eq":
		return matchEquals(value, c.Value)
	case "ne":
		return !matchEquals(value, c.Value)
	case "contains":
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", value)),
			strings.ToLower(fmt.Sprintf("%v", c.Value)))
	case "prefix":
		return strings.HasPrefix(fmt.Sprintf("%v", value), fmt.Sprintf("%v", c.Value))
	case "gt", "gte", "lt", "lte":
		ev, ok1 := toFloat64(value)
		cv, ok2 := toFloat64(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch c.Operator {
		case "gt":
			return ev > cv
		case "gte":
			return ev >= cv
		case "lt":
			return ev < cv
		case "lte":
			return ev <= cv
		}
	case "in":
		str := fmt.Sprintf("%v", value)
		for _, v := range c.Values {
			if str == v {
				return true
			}
		}
		return false
	case "exists":
		return value != nil && value != ""
	}
	return false
}

func matchEquals(value, expected any) bool {
	if sv, ok := value.(string); ok {
		if ev, ok := expected.(string); ok {
			return sv == ev
		}
	}
	if nv, ok := toFloat64(value); ok {
		if ev, ok := toFloat64(expected); ok {
			return nv == ev
		}
	}
	return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", expected)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ParseRule parses a rule from YAML bytes.
func ParseRule(data []byte) (*DetectionRule, error) {
	var rule DetectionRule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}
	return &rule, nil
}

// ParseRules parses multiple rules from YAML bytes. A document holding a
// single rule object is accepted as well.
func ParseRules(data []byte) ([]*DetectionRule, error) {
	var parsed []*DetectionRule
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		rule, singleErr := ParseRule(data)
		if singleErr != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		return []*DetectionRule{rule}, nil
	}

	for i, rule := range parsed {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return parsed, nil
}
