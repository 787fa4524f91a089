// Package logging provides log hygiene helpers for signal payloads.
package logging

import (
	"strings"
)

// SensitiveKeys lists payload key names whose values must never reach logs.
var SensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"private_key":   true,
	"credentials":   true,
	"authorization": true,
	"bearer":        true,
	"session_id":    true,
	"cookie":        true,
	"x-api-key":     true,
}

// MaskedValue replaces sensitive values in log output.
const MaskedValue = "[REDACTED]"

// IsSensitiveKey reports whether a payload key holds sensitive data, by
// exact match or by containing a sensitive keyword.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if SensitiveKeys[lower] {
		return true
	}
	for sensitive := range SensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// RedactPayload returns a copy of a signal payload with sensitive values
// masked, recursing into nested maps. The input is never modified.
func RedactPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if IsSensitiveKey(key) {
			out[key] = MaskedValue
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = RedactPayload(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// MaskAPIKey keeps only the first and last four characters of a key for
// identification in logs.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return MaskedValue
	}
	return key[:4] + "****" + key[len(key)-4:]
}
