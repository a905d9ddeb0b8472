package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	s := NewServer("127.0.0.1", 0)

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
		if rec.Body.String() != "ok" {
			t.Errorf("GET %s: unexpected body %q", path, rec.Body.String())
		}
	}
}

func TestHealthRejectsNonGet(t *testing.T) {
	s := NewServer("127.0.0.1", 0)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
