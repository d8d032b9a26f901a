package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/heartsync/internal/app"
	"github.com/ayusman/heartsync/internal/scoring"
)

func newTestApp() *app.App {
	return app.New(app.Config{Weights: scoring.DefaultWeights()})
}

func TestServer_Health(t *testing.T) {
	s := New(Config{App: newTestApp()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		for _, key := range []string{"uptime", "session_active", "displays"} {
			if _, exists := response[key]; !exists {
				t.Errorf("expected %q field in response", key)
			}
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_Routes(t *testing.T) {
	t.Run("without an app only health is served", func(t *testing.T) {
		s := New(Config{})
		for _, path := range []string{"/api/state", "/api/ws", "/api/sessions", "/"} {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
			}
		}
		if s.Hub() != nil {
			t.Error("hub should be nil without an app")
		}
	})

	t.Run("sessions need a store", func(t *testing.T) {
		s := New(Config{App: newTestApp()})
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 without persistence, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET /api/state: expected 200, got %d", rec.Code)
		}
	})
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()

	page := "<html><body>HeartSync</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	script := "console.log('sync')"
	if err := os.WriteFile(filepath.Join(dir, "display.js"), []byte(script), 0644); err != nil {
		t.Fatalf("failed to create test script: %v", err)
	}

	s := New(Config{StaticDir: dir, App: newTestApp()})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, page},
		{"/display.js", http.StatusOK, script},
		{"/missing.html", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}
