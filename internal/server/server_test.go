package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/store"
)

func serve(s http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var h healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&h); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	return h
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	rec := serve(s, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	h := decodeHealth(t, rec)
	if h.Status != "ok" || h.Uptime == "" {
		t.Errorf("unexpected health response: %+v", h)
	}
	if h.Samples != nil || h.LiveClients != nil {
		t.Errorf("bare server should not report samples or clients: %+v", h)
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		if rec := serve(s, method, "/api/health"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /api/health: expected 405, got %d", method, rec.Code)
		}
	}
}

func TestServer_Health_ReportsModelAndHub(t *testing.T) {
	model, err := knn.New(1)
	if err != nil {
		t.Fatal(err)
	}
	_ = model.Learn("fist", []float64{0, 0})
	_ = model.Learn("open", []float64{1, 1})

	s := New(Config{Model: model, Hub: NewHub(nil)})

	h := decodeHealth(t, serve(s, http.MethodGet, "/api/health"))
	if h.Samples == nil || *h.Samples != 2 {
		t.Errorf("expected 2 samples, got %v", h.Samples)
	}
	if h.LiveClients == nil || *h.LiveClients != 0 {
		t.Errorf("expected 0 live clients, got %v", h.LiveClients)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.html": "<html><body>pose trainer</body></html>",
		"app.js":     "console.log('ready')",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name     string
		static   string
		path     string
		wantCode int
		wantBody string
	}{
		{"index at root", dir, "/", http.StatusOK, files["index.html"]},
		{"asset", dir, "/app.js", http.StatusOK, files["app.js"]},
		{"missing asset", dir, "/missing.css", http.StatusNotFound, ""},
		{"no static dir", "", "/", http.StatusNotFound, ""},
		{"unknown api path", "", "/api/nonexistent", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(New(Config{StaticDir: tt.static}), http.MethodGet, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestNew_DefaultLogger(t *testing.T) {
	s := New(Config{StaticDir: "/srv/web"})
	if s.config.Logger == nil {
		t.Error("expected a default logger")
	}
	if s.config.StaticDir != "/srv/web" {
		t.Errorf("StaticDir = %q", s.config.StaticDir)
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{})

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodOptions, "/save", http.StatusNoContent},
		{http.MethodOptions, "/api/classify", http.StatusNoContent},
		{http.MethodGet, "/api/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path)
			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q", got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
				t.Errorf("Access-Control-Allow-Headers = %q", got)
			}
		})
	}
}

func TestServer_RoutesDependOnConfig(t *testing.T) {
	model, _ := knn.New(3)
	full := New(Config{
		Store: store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultFileName)),
		Model: model,
		Hub:   NewHub(nil),
	})
	bare := New(Config{})

	for _, path := range []string{"/load", "/api/samples", "/api/live"} {
		if rec := serve(bare, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("bare GET %s: expected 404, got %d", path, rec.Code)
		}
	}

	if rec := serve(full, http.MethodGet, "/api/samples"); rec.Code != http.StatusOK {
		t.Errorf("GET /api/samples: expected 200, got %d", rec.Code)
	}
	// Nothing saved yet.
	if rec := serve(full, http.MethodGet, "/load"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /load: expected 404 before any save, got %d", rec.Code)
	}
}
