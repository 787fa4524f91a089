package rules

import (
	"testing"
)

func resolver(fields map[string]any) func(string) any {
	return func(field string) any { return fields[field] }
}

func TestCondition_Match(t *testing.T) {
	fields := map[string]any{
		"source":      "ids.suricata",
		"target":      "host-a",
		"event_type":  "alert",
		"fail_count":  7,
		"process":     "powershell.exe",
		"description": "Suspicious Outbound Connection",
	}

	tests := []struct {
		name      string
		condition Condition
		want      bool
	}{
		{
			name:      "eq string match",
			condition: Condition{Field: "event_type", Operator: "eq", Value: "alert"},
			want:      true,
		},
		{
			name:      "eq string no match",
			condition: Condition{Field: "event_type", Operator: "eq", Value: "flow"},
			want:      false,
		},
		{
			name:      "ne match",
			condition: Condition{Field: "event_type", Operator: "ne", Value: "flow"},
			want:      true,
		},
		{
			name:      "contains case-insensitive",
			condition: Condition{Field: "description", Operator: "contains", Value: "outbound"},
			want:      true,
		},
		{
			name:      "prefix match",
			condition: Condition{Field: "source", Operator: "prefix", Value: "ids."},
			want:      true,
		},
		{
			name:      "gt numeric",
			condition: Condition{Field: "fail_count", Operator: "gt", Value: 5},
			want:      true,
		},
		{
			name:      "gte boundary",
			condition: Condition{Field: "fail_count", Operator: "gte", Value: 7},
			want:      true,
		},
		{
			name:      "lt no match",
			condition: Condition{Field: "fail_count", Operator: "lt", Value: 5},
			want:      false,
		},
		{
			name:      "numeric against non-numeric field",
			condition: Condition{Field: "process", Operator: "gt", Value: 5},
			want:      false,
		},
		{
			name:      "in list match",
			condition: Condition{Field: "process", Operator: "in", Values: []string{"cmd.exe", "powershell.exe"}},
			want:      true,
		},
		{
			name:      "in list no match",
			condition: Condition{Field: "process", Operator: "in", Values: []string{"cmd.exe"}},
			want:      false,
		},
		{
			name:      "exists match",
			condition: Condition{Field: "target", Operator: "exists"},
			want:      true,
		},
		{
			name:      "exists missing field",
			condition: Condition{Field: "missing", Operator: "exists"},
			want:      false,
		},
		{
			name: "and composite all match",
			condition: Condition{And: []Condition{
				{Field: "event_type", Operator: "eq", Value: "alert"},
				{Field: "fail_count", Operator: "gte", Value: 3},
			}},
			want: true,
		},
		{
			name: "and composite one fails",
			condition: Condition{And: []Condition{
				{Field: "event_type", Operator: "eq", Value: "alert"},
				{Field: "fail_count", Operator: "lt", Value: 3},
			}},
			want: false,
		},
		{
			name: "or composite one matches",
			condition: Condition{Or: []Condition{
				{Field: "event_type", Operator: "eq", Value: "flow"},
				{Field: "process", Operator: "eq", Value: "powershell.exe"},
			}},
			want: true,
		},
		{
			name: "nested composite",
			condition: Condition{And: []Condition{
				{Field: "source", Operator: "prefix", Value: "ids."},
				{Or: []Condition{
					{Field: "fail_count", Operator: "gt", Value: 100},
					{Field: "event_type", Operator: "eq", Value: "alert"},
				}},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.condition.Match(resolver(fields)); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_MatchDeterministic(t *testing.T) {
	cond := Condition{Or: []Condition{
		{Field: "event_type", Operator: "eq", Value: "alert"},
		{Field: "fail_count", Operator: "gte", Value: 3},
	}}
	fields := map[string]any{"event_type": "alert", "fail_count": 2}

	first := cond.Match(resolver(fields))
	for i := 0; i < 100; i++ {
		if got := cond.Match(resolver(fields)); got != first {
			t.Fatalf("Match() not deterministic: run %d = %v, first = %v", i, got, first)
		}
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    DetectionRule
		wantErr bool
	}{
		{
			name: "valid rule",
			rule: DetectionRule{
				ID:       "r-ssh-brute",
				Name:     "SSH Brute Force",
				Severity: SeverityHigh,
				Enabled:  true,
				Condition: Condition{
					Field: "event_type", Operator: "eq", Value: "auth_failure",
				},
			},
			wantErr: false,
		},
		{
			name: "missing id",
			rule: DetectionRule{
				Name:      "No ID",
				Severity:  SeverityLow,
				Condition: Condition{Field: "x", Operator: "exists"},
			},
			wantErr: true,
		},
		{
			name: "bad severity",
			rule: DetectionRule{
				ID:        "r-1",
				Name:      "Bad Severity",
				Severity:  "urgent",
				Condition: Condition{Field: "x", Operator: "exists"},
			},
			wantErr: true,
		},
		{
			name: "bad operator",
			rule: DetectionRule{
				ID:        "r-2",
				Name:      "Bad Operator",
				Severity:  SeverityLow,
				Condition: Condition{Field: "x", Operator: "regex", Value: ".*"},
			},
			wantErr: true,
		},
		{
			name: "in without values",
			rule: DetectionRule{
				ID:        "r-3",
				Name:      "In Without Values",
				Severity:  SeverityLow,
				Condition: Condition{Field: "x", Operator: "in"},
			},
			wantErr: true,
		},
		{
			name: "mixed and/or at same level",
			rule: DetectionRule{
				ID:       "r-4",
				Name:     "Mixed Composite",
				Severity: SeverityLow,
				Condition: Condition{
					And: []Condition{{Field: "x", Operator: "exists"}},
					Or:  []Condition{{Field: "y", Operator: "exists"}},
				},
			},
			wantErr: true,
		},
		{
			name: "composite with field",
			rule: DetectionRule{
				ID:       "r-5",
				Name:     "Composite With Field",
				Severity: SeverityLow,
				Condition: Condition{
					Field:    "x",
					Operator: "exists",
					And:      []Condition{{Field: "y", Operator: "exists"}},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRules(t *testing.T) {
	t.Run("multiple rules", func(t *testing.T) {
		data := []byte(`
- id: r-ssh-brute
  name: SSH Brute Force
  severity: high
  enabled: true
  techniques: [T1110]
  condition:
    and:
      - field: event_type
        operator: eq
        value: auth_failure
      - field: fail_count
        operator: gte
        value: 5
- id: r-psh-spawn
  name: PowerShell Spawn
  severity: medium
  enabled: true
  condition:
    field: process
    operator: contains
    value: powershell
`)
		parsed, err := ParseRules(data)
		if err != nil {
			t.Fatalf("ParseRules() error = %v", err)
		}
		if len(parsed) != 2 {
			t.Fatalf("ParseRules() returned %d rules, want 2", len(parsed))
		}
		if parsed[0].ID != "r-ssh-brute" || parsed[0].Severity != SeverityHigh {
			t.Errorf("unexpected first rule: %+v", parsed[0])
		}
		if len(parsed[0].Condition.And) != 2 {
			t.Errorf("expected composite condition, got %+v", parsed[0].Condition)
		}
	})

	t.Run("single rule document", func(t *testing.T) {
		data := []byte(`
id: r-single
name: Single Rule
severity: low
enabled: true
condition:
  field: event_type
  operator: exists
`)
		parsed, err := ParseRules(data)
		if err != nil {
			t.Fatalf("ParseRules() error = %v", err)
		}
		if len(parsed) != 1 || parsed[0].ID != "r-single" {
			t.Fatalf("unexpected parse result: %+v", parsed)
		}
	})

	t.Run("invalid rule rejected", func(t *testing.T) {
		data := []byte(`
- id: r-bad
  name: Bad Rule
  severity: nonsense
  condition:
    field: x
    operator: exists
`)
		if _, err := ParseRules(data); err == nil {
			t.Error("ParseRules() should reject invalid severity")
		}
	})
}

func TestMaxSeverity(t *testing.T) {
	if got := MaxSeverity(SeverityLow, SeverityCritical); got != SeverityCritical {
		t.Errorf("MaxSeverity(low, critical) = %v, want critical", got)
	}
	if got := MaxSeverity(SeverityHigh, SeverityMedium); got != SeverityHigh {
		t.Errorf("MaxSeverity(high, medium) = %v, want high", got)
	}
}
