package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"redblue-core/internal/config"
)

func testMiddleware(t *testing.T, keys ...string) http.Handler {
	t.Helper()
	hashes := make([]string, len(keys))
	for i, key := range keys {
		hash, err := HashKey(key)
		if err != nil {
			t.Fatalf("HashKey() error = %v", err)
		}
		hashes[i] = hash
	}
	cfg := config.AuthConfig{
		Enabled:      true,
		APIKeyHeader: "X-API-Key",
		APIKeyHashes: hashes,
	}
	return Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func request(handler http.Handler, path, key string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestMiddleware(t *testing.T) {
	handler := testMiddleware(t, "rbk_valid_key_1", "rbk_valid_key_2")

	t.Run("valid key passes", func(t *testing.T) {
		if code := request(handler, "/v1/alerts", "rbk_valid_key_1"); code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
		if code := request(handler, "/v1/alerts", "rbk_valid_key_2"); code != http.StatusOK {
			t.Errorf("second key status = %d, want 200", code)
		}
	})

	t.Run("missing key is 401", func(t *testing.T) {
		if code := request(handler, "/v1/alerts", ""); code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", code)
		}
	})

	t.Run("wrong key is 401", func(t *testing.T) {
		if code := request(handler, "/v1/alerts", "rbk_wrong"); code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", code)
		}
	})

	t.Run("health and metrics stay open", func(t *testing.T) {
		for _, path := range []string{"/health", "/metrics", "/metrics/prometheus"} {
			if code := request(handler, path, ""); code != http.StatusOK {
				t.Errorf("%s status = %d, want 200", path, code)
			}
		}
	})
}

func TestHashKey_Salted(t *testing.T) {
	a, err := HashKey("same-key")
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	b, err := HashKey("same-key")
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if a == b {
		t.Error("bcrypt hashes of the same key must differ by salt")
	}
}
