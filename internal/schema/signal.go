// Package schema defines the canonical signal schema for redblue-core.
// All submitted signals are normalized to this structure before detection.
package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signal represents one raw unit of telemetry submitted for detection
// evaluation. Signals are transient: they are consumed by the matcher and
// never stored independently.
type Signal struct {
	// Required fields
	SignalID  uuid.UUID `json:"signal_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Source    string    `json:"source" validate:"required,source_format"`
	Target    string    `json:"target" validate:"required,max=1024"`

	// Opaque key-value payload evaluated by rule conditions.
	Payload map[string]any `json:"payload,omitempty"`

	// Internal fields (set by system)
	SchemaVersion string    `json:"schema_version"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Field resolves a dotted path against the signal. Top-level names resolve
// to the signal's own fields, everything else is looked up in the payload.
// A leading "payload." segment is stripped first, so rule files may address
// payload keys either bare or fully qualified.
func (s *Signal) Field(path string) any {
	switch path {
	case "source":
		return s.Source
	case "target":
		return s.Target
	case "signal_id":
		return s.SignalID.String()
	}
	path = strings.TrimPrefix(path, "payload.")
	return lookupPath(s.Payload, path)
}

func lookupPath(m map[string]any, path string) any {
	if m == nil {
		return nil
	}
	rest := path
	cur := any(m)
	for rest != "" {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		key := rest
		if i := indexDot(rest); i >= 0 {
			key, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// SchemaVersionCurrent is the current version of the signal schema.
const SchemaVersionCurrent = "1.0.0"
