package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testRule(id string, severity Severity, enabled bool) *DetectionRule {
	return &DetectionRule{
		ID:       id,
		Name:     "Rule " + id,
		Severity: severity,
		Enabled:  enabled,
		Condition: Condition{
			Field: "event_type", Operator: "exists",
		},
	}
}

func TestStore_UpsertVersioning(t *testing.T) {
	store := NewStore()

	v1, err := store.Upsert(testRule("r-1", SeverityLow, true))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if v1 != 1 {
		t.Errorf("first Upsert() version = %d, want 1", v1)
	}

	// Severity edit publishes a new version, not an overwrite.
	v2, err := store.Upsert(testRule("r-1", SeverityHigh, true))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if v2 != 2 {
		t.Errorf("second Upsert() version = %d, want 2", v2)
	}

	latest, err := store.Get("r-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if latest.Severity != SeverityHigh || latest.Version != 2 {
		t.Errorf("Get() = severity %v version %d, want high v2", latest.Severity, latest.Version)
	}

	history, err := store.Versions("r-1")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Versions() returned %d entries, want 2", len(history))
	}
	if history[0].Severity != SeverityLow {
		t.Errorf("history[0].Severity = %v, want low (history preserved)", history[0].Severity)
	}
}

func TestStore_UpsertRejectsInvalid(t *testing.T) {
	store := NewStore()

	bad := testRule("r-bad", "nonsense", true)
	if _, err := store.Upsert(bad); !errors.Is(err, ErrValidation) {
		t.Errorf("Upsert() error = %v, want ErrValidation", err)
	}
	if _, err := store.Upsert(nil); !errors.Is(err, ErrValidation) {
		t.Errorf("Upsert(nil) error = %v, want ErrValidation", err)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := store.Versions("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Versions() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ActiveRules(t *testing.T) {
	store := NewStore()

	mustUpsert := func(r *DetectionRule) {
		t.Helper()
		if _, err := store.Upsert(r); err != nil {
			t.Fatalf("Upsert(%s) error = %v", r.ID, err)
		}
	}

	mustUpsert(testRule("r-b", SeverityLow, true))
	mustUpsert(testRule("r-a", SeverityHigh, true))
	mustUpsert(testRule("r-c", SeverityMedium, false))

	active := store.ActiveRules()
	if len(active) != 2 {
		t.Fatalf("ActiveRules() returned %d rules, want 2 (disabled excluded)", len(active))
	}
	if active[0].ID != "r-a" || active[1].ID != "r-b" {
		t.Errorf("ActiveRules() order = [%s %s], want deterministic [r-a r-b]", active[0].ID, active[1].ID)
	}

	// Disabling via a new version removes the rule from the active set.
	mustUpsert(testRule("r-a", SeverityHigh, false))
	active = store.ActiveRules()
	if len(active) != 1 || active[0].ID != "r-b" {
		t.Errorf("ActiveRules() after disable = %d rules, want only r-b", len(active))
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore()
	if _, err := store.Upsert(testRule("r-1", SeverityLow, true)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, _ := store.Get("r-1")
	got.Severity = SeverityCritical

	again, _ := store.Get("r-1")
	if again.Severity != SeverityLow {
		t.Error("mutating a returned rule must not affect the store")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	good := `
- id: r-file
  name: File Rule
  severity: medium
  enabled: true
  condition:
    field: event_type
    operator: eq
    value: alert
`
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	// Broken files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Non-YAML files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	loaded, err := LoadDir(store, dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if loaded != 1 {
		t.Errorf("LoadDir() loaded = %d, want 1", loaded)
	}
	if _, err := store.Get("r-file"); err != nil {
		t.Errorf("rule from file not published: %v", err)
	}

	t.Run("missing directory", func(t *testing.T) {
		n, err := LoadDir(NewStore(), filepath.Join(dir, "does-not-exist"))
		if err != nil || n != 0 {
			t.Errorf("LoadDir(missing) = %d, %v; want 0, nil", n, err)
		}
	})
}
