// Package correlate aggregates rule matches into deduplicated alerts.
package correlate

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the deduplication key for an alert from the signal
// source, the target identity and the firing rule. The key is stable for
// the lifetime of an alert.
func Fingerprint(source, target, ruleID string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ManualFingerprint derives the deduplication key for operator-created
// alerts, which have no originating signal or rule.
func ManualFingerprint(title string) string {
	return Fingerprint("manual", title, "manual")
}
