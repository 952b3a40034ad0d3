package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/services"
)

type staticStore struct{}

func (staticStore) List(ctx context.Context) ([]models.Record, error) {
	return []models.Record{{Country: "France", Date: "2021-01-01", Cases: 1}}, nil
}

func (staticStore) Create(ctx context.Context, r models.Record) (models.MutationResult, error) {
	return models.MutationResult{Message: "inserted"}, nil
}

func (staticStore) Update(ctx context.Context, r models.Record) (models.MutationResult, error) {
	return models.MutationResult{Message: "updated"}, nil
}

func (staticStore) Delete(ctx context.Context, key models.Key) (models.MutationResult, error) {
	return models.MutationResult{Message: "deleted"}, nil
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := quietLogger()
	dashboard := services.NewDashboard(staticStore{}, 20, services.WithLogger(logger))
	if err := dashboard.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_marker_total", Help: "marker"}))

	templates := &TemplateHandlers{
		Dashboard: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<title>Pandemic Dashboard</title>"))
		},
	}
	return NewServer(dashboard, okPinger{}, reg, logger, templates)
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method      string
		path        string
		status      int
		contentType string
	}{
		{http.MethodGet, "/", http.StatusOK, "text/html"},
		{http.MethodGet, "/health", http.StatusOK, "application/json"},
		{http.MethodGet, "/admin/stats", http.StatusOK, "application/json"},
		{http.MethodGet, "/metrics", http.StatusOK, "text/plain"},
		{http.MethodGet, "/api/records", http.StatusOK, "application/json"},
		{http.MethodGet, "/api/charts/timeseries", http.StatusOK, "application/json"},
		{http.MethodGet, "/api/charts/categories", http.StatusOK, "application/json"},
		{http.MethodGet, "/api/summary", http.StatusOK, "application/json"},
		{http.MethodPost, "/api/reload", http.StatusOK, "application/json"},
		{http.MethodGet, "/sse/page?page=1", http.StatusOK, "text/event-stream"},
		{http.MethodGet, "/sse/reload", http.StatusOK, "text/event-stream"},
		{http.MethodGet, "/sse/rows/options?country=France&date=2021-01-01", http.StatusOK, "text/event-stream"},
		{http.MethodPost, "/sse/records", http.StatusOK, "text/event-stream"},
		{http.MethodPut, "/sse/records", http.StatusOK, "text/event-stream"},
		{http.MethodDelete, "/sse/records?country=France&date=2021-01-01", http.StatusOK, "text/event-stream"},
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
		{http.MethodPost, "/api/records", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/sse/records", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			srv.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.contentType != "" && !strings.Contains(w.Header().Get("Content-Type"), tt.contentType) {
				t.Errorf("expected content-type %q, got %q", tt.contentType, w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_MetricsExposesRegistry(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), "test_marker_total") {
		t.Error("expected /metrics to expose the given registry")
	}
}
