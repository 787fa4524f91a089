package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadDir loads every YAML rule file from dir into the store. Files that
// fail to parse are logged and skipped; a missing directory is not an error.
// Returns the number of rules published.
func LoadDir(store *Store, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rules directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Error("failed to read rule file", "file", entry.Name(), "error", err)
			continue
		}

		parsed, err := ParseRules(data)
		if err != nil {
			slog.Error("failed to parse rule file", "file", entry.Name(), "error", err)
			continue
		}

		for _, rule := range parsed {
			if _, err := store.Upsert(rule); err != nil {
				slog.Error("failed to publish rule", "rule_id", rule.ID, "error", err)
				continue
			}
			loaded++
		}
	}

	return loaded, nil
}
