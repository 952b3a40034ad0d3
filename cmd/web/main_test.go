package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pandemic-dashboard/internal/components"
	"pandemic-dashboard/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newBackend fakes the statistics API with a fixed record set.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /data/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"country":"France","date":"2021-01-01","cases":120,"deaths":3,"recovered":100,"active":17,"mortality_rate":2.5},
			{"country":"Chad","date":"2021-01-01","cases":4,"deaths":0,"recovered":1,"active":3}
		]`)
	})
	mux.HandleFunc("DELETE /data/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"deleted"}`)
	})
	mux.HandleFunc("GET /test_connection/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8084,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Backend: config.BackendConfig{
			BaseURL: backendURL,
			Timeout: 2 * time.Second,
		},
		Dashboard: config.DashboardConfig{
			Title:    "Pandemic Dashboard",
			PageSize: 20,
			CacheDir: t.TempDir(),
		},
		Security: config.SecurityConfig{
			EnableRateLimit: false,
			RateLimitRPS:    100,
			RateLimitBurst:  10,
		},
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg := testConfig(t, newBackend(t).URL)
	a, err := newApp(context.Background(), cfg, quietLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.loader.Wait(ctx); err != nil {
		t.Fatalf("components not ready: %v", err)
	}
	return a
}

// Integration tests for HTTP routes
func TestApp_Routes(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/api/records", http.StatusOK, "application/json"},
		{"/api/charts/timeseries", http.StatusOK, "application/json"},
		{"/api/charts/categories", http.StatusOK, "application/json"},
		{"/api/summary", http.StatusOK, "application/json"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
		{"/sse/page?page=1", http.StatusOK, "text/event-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)

			a.handler.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			if w.Header().Get("X-Request-ID") == "" {
				t.Error("expected X-Request-ID header")
			}

			// Validate JSON responses
			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

func TestApp_DashboardPage(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	body := w.Body.String()
	for _, want := range []string{
		"<title>Pandemic Dashboard</title>",
		`<div id="header">`,
		`<div id="table">`,
		`data-init="@get(&#39;/sse/page?page=1&#39;)"`,
	} {
		if !strings.Contains(body, want) && !strings.Contains(body, strings.ReplaceAll(want, "&#39;", "'")) {
			t.Errorf("dashboard page should contain %q", want)
		}
	}
}

func TestApp_InitialLoadFromBackend(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/records", nil))

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Data []map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !response.Success || len(response.Data.Data) != 2 {
		t.Errorf("expected the backend's 2 records, got %+v", response)
	}
}

func TestApp_DeleteReconciles(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sse/records?country=Chad&date=2021-01-01&page=1", nil))

	if !strings.Contains(w.Body.String(), "Record deleted successfully!") {
		t.Fatalf("expected success alert, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	if !strings.Contains(w.Body.String(), `"record_count":1`) {
		t.Errorf("expected one record left, got %s", w.Body.String())
	}
}

func TestApp_Metrics(t *testing.T) {
	a := newTestApp(t)

	a.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, metric := range []string{
		`http_requests_total{method="GET",path="/api/summary",status="200"} 1`,
		`backend_requests_total{op="list",status="ok"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics should contain %q", metric)
		}
	}
}

func TestApp_MethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/records", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestNewApp_BackendDown(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := newApp(context.Background(), cfg, quietLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("an unreachable backend must not stop startup: %v", err)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(w.Body.String(), `"backend":"unreachable"`) {
		t.Errorf("expected degraded health, got %s", w.Body.String())
	}
}

func TestDashboardHandler_NotReady(t *testing.T) {
	loader := components.NewLoader(components.EmbeddedFS(), quietLogger())
	h := dashboardHandler(loader, "Pandemic Dashboard", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestComponentsFS(t *testing.T) {
	dir := t.TempDir()
	if fsys := componentsFS(dir); fsys == nil {
		t.Error("expected a directory filesystem")
	}
	if fsys := componentsFS(""); fsys == nil {
		t.Error("expected the embedded filesystem")
	}
}
