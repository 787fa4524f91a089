// Package auth provides API key authentication for the HTTP surface.
package auth

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"redblue-core/internal/config"
	"redblue-core/internal/logging"
)

// HashKey returns the bcrypt hash of an API key, for provisioning
// api_key_hashes entries.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Middleware returns a middleware enforcing API key auth against the
// configured bcrypt hashes. Health and metrics endpoints stay open so
// probes and scrapers work without credentials.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/metrics", "/metrics/prometheus":
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(cfg.APIKeyHeader)
			if key == "" {
				unauthorized(w, "missing API key")
				return
			}

			for _, hash := range cfg.APIKeyHashes {
				if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Warn("rejected API key",
				"key", logging.MaskAPIKey(key),
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			unauthorized(w, "invalid API key")
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
