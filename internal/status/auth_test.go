package status

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func callWithKey(t *testing.T, mw func(http.Handler) http.Handler, header, key string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	if code := callWithKey(t, APIKey("none", "X-API-Key", "secret"), "X-API-Key", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured.
	if code := callWithKey(t, APIKey("apikey", "X-API-Key", ""), "X-API-Key", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_CorrectKey_Passes(t *testing.T) {
	if code := callWithKey(t, APIKey("apikey", "X-API-Key", "supersecret"), "X-API-Key", "supersecret"); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_WrongKey_Rejected(t *testing.T) {
	if code := callWithKey(t, APIKey("apikey", "X-API-Key", "supersecret"), "X-API-Key", "guess"); code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", code)
	}
}

func TestAPIKey_MissingKey_Rejected(t *testing.T) {
	if code := callWithKey(t, APIKey("apikey", "X-API-Key", "supersecret"), "X-API-Key", ""); code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", code)
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	mw := APIKey("apikey", "X-Dqsync-Key", "k")
	if code := callWithKey(t, mw, "X-API-Key", "k"); code != http.StatusUnauthorized {
		t.Errorf("wrong header: got %d, want 401", code)
	}
	if code := callWithKey(t, mw, "X-Dqsync-Key", "k"); code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", code)
	}
}
