package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"pandemic-dashboard/internal/backend"
	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/services"
)

// memStore stands in for the statistics backend.
type memStore struct {
	records []models.Record
	err     error
}

func (s *memStore) List(ctx context.Context) ([]models.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *memStore) Create(ctx context.Context, r models.Record) (models.MutationResult, error) {
	if s.err != nil {
		return models.MutationResult{}, s.err
	}
	return models.MutationResult{Message: "inserted"}, nil
}

func (s *memStore) Update(ctx context.Context, r models.Record) (models.MutationResult, error) {
	if s.err != nil {
		return models.MutationResult{}, s.err
	}
	return models.MutationResult{Message: "updated"}, nil
}

func (s *memStore) Delete(ctx context.Context, key models.Key) (models.MutationResult, error) {
	if s.err != nil {
		return models.MutationResult{}, s.err
	}
	return models.MutationResult{Message: "deleted"}, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rate(v float64) *float64 {
	return &v
}

func testRecords() []models.Record {
	return []models.Record{
		{Country: "France", Date: "2021-01-01", Cases: 120, Deaths: 3, Recovered: 100, Active: 17, MortalityRate: rate(2)},
		{Country: "France", Date: "2021-01-02", Cases: 130, Deaths: 4, Recovered: 110, Active: 16, MortalityRate: rate(3)},
		{Country: "Chad", Date: "2021-01-01", Cases: 4, Deaths: 0, Recovered: 1, Active: 3},
	}
}

func createTestDashboard(store *memStore, pageSize int) *services.Dashboard {
	d := services.NewDashboard(store, pageSize, services.WithLogger(quietLogger()))
	d.SetRecords(testRecords())
	return d
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func TestAPIHandlers_HandleRecords(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 2), stubPinger{}, quietLogger())

	tests := []struct {
		name       string
		url        string
		wantItems  int
		wantPage   float64
		wantPages  float64
		wantTotal  float64
		wantFilter string
	}{
		{"first page", "/api/records", 2, 1, 2, 3, ""},
		{"second page", "/api/records?page=2", 1, 2, 2, 3, ""},
		{"past the end", "/api/records?page=9", 0, 9, 2, 3, ""},
		{"filtered", "/api/records?country=France", 2, 1, 1, 2, "France"},
		{"bad page falls back to 1", "/api/records?page=abc", 2, 1, 2, 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()

			handlers.HandleRecords(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected content-type 'application/json', got %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
				t.Errorf("expected cache-control 'no-cache', got %q", cc)
			}

			response := decodeEnvelope(t, w)
			if success, ok := response["success"].(bool); !ok || !success {
				t.Fatal("expected success=true in response")
			}

			data := response["data"].(map[string]any)
			items, ok := data["data"].([]any)
			if !ok {
				t.Fatalf("expected data array, got %T", data["data"])
			}
			if len(items) != tt.wantItems {
				t.Errorf("expected %d items, got %d", tt.wantItems, len(items))
			}

			page := data["pagination"].(map[string]any)
			if page["page"] != tt.wantPage || page["total_pages"] != tt.wantPages || page["total"] != tt.wantTotal {
				t.Errorf("unexpected pagination: %v", page)
			}

			filter := data["filter"].(map[string]any)
			if got, _ := filter["country"].(string); got != tt.wantFilter {
				t.Errorf("expected filter country %q, got %q", tt.wantFilter, got)
			}
		})
	}
}

func TestAPIHandlers_HandleTimeSeries(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 20), stubPinger{}, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/charts/timeseries", nil)
	w := httptest.NewRecorder()

	handlers.HandleTimeSeries(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decodeEnvelope(t, w)
	data := response["data"].(map[string]any)
	if data["type"] != "line" {
		t.Errorf("expected line chart, got %v", data["type"])
	}
	labels, _ := data["labels"].([]any)
	if len(labels) != 3 {
		t.Errorf("expected one label per record, got %v", labels)
	}
}

func TestAPIHandlers_HandleCategories(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 2), stubPinger{}, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/charts/categories?page=2", nil)
	w := httptest.NewRecorder()

	handlers.HandleCategories(w, req)

	response := decodeEnvelope(t, w)
	data := response["data"].(map[string]any)
	if data["type"] != "bar" {
		t.Errorf("expected bar chart, got %v", data["type"])
	}
	labels, _ := data["labels"].([]any)
	if len(labels) != 1 || labels[0] != "Chad 2021-01-01" {
		t.Errorf("expected the second page's single row, got %v", labels)
	}
}

func TestAPIHandlers_HandleSummary(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 20), stubPinger{}, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/summary?country=France", nil)
	w := httptest.NewRecorder()

	handlers.HandleSummary(w, req)

	response := decodeEnvelope(t, w)
	data := response["data"].(map[string]any)
	if data["records"] != float64(2) || data["total_cases"] != float64(250) {
		t.Errorf("unexpected summary: %v", data)
	}
	if data["mean_mortality_rate"] != 2.5 {
		t.Errorf("expected mean mortality 2.5, got %v", data["mean_mortality_rate"])
	}
}

func TestAPIHandlers_HandleReload(t *testing.T) {
	store := &memStore{records: testRecords()[:1]}
	dashboard := createTestDashboard(store, 20)
	handlers := NewAPIHandlers(dashboard, stubPinger{}, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	w := httptest.NewRecorder()

	handlers.HandleReload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := len(dashboard.Records(models.Filter{})); got != 1 {
		t.Errorf("expected reloaded set of 1, got %d", got)
	}
}

func TestAPIHandlers_HandleReload_BackendDown(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"transport", &backend.TransportError{Method: http.MethodGet, Path: "/data/", Err: errors.New("connection refused")}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"status", &backend.StatusError{Method: http.MethodGet, Path: "/data/", StatusCode: 500}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"not found", &backend.StatusError{Method: http.MethodGet, Path: "/data/", StatusCode: 404}, http.StatusNotFound, "NOT_FOUND"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAPIHandlers(createTestDashboard(&memStore{err: tt.err}, 20), stubPinger{}, quietLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
			w := httptest.NewRecorder()

			handlers.HandleReload(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}

			response := decodeEnvelope(t, w)
			if success, _ := response["success"].(bool); success {
				t.Error("expected success=false")
			}
			errObj := response["error"].(map[string]any)
			if errObj["code"] != tt.code {
				t.Errorf("expected code %s, got %v", tt.code, errObj["code"])
			}
		})
	}
}

func TestAPIHandlers_UpstreamDetails(t *testing.T) {
	statusErr := &backend.StatusError{Method: http.MethodGet, Path: "/data/", StatusCode: 503, Detail: "database locked"}
	handlers := NewAPIHandlers(createTestDashboard(&memStore{err: statusErr}, 20), stubPinger{}, quietLogger())

	w := httptest.NewRecorder()
	handlers.HandleReload(w, httptest.NewRequest(http.MethodPost, "/api/reload", nil))

	errObj := decodeEnvelope(t, w)["error"].(map[string]any)
	if errObj["details"] != "database locked" {
		t.Errorf("expected backend detail in the envelope, got %v", errObj["details"])
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	tests := []struct {
		name        string
		pingErr     error
		wantStatus  string
		wantBackend string
	}{
		{"backend up", nil, "healthy", "reachable"},
		{"backend down", errors.New("connection refused"), "degraded", "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 20), stubPinger{err: tt.pingErr}, quietLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			handlers.HandleHealth(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected content-type 'application/json', got %q", ct)
			}

			response := decodeEnvelope(t, w)
			data := response["data"].(map[string]any)
			if data["status"] != tt.wantStatus {
				t.Errorf("expected status %q, got %v", tt.wantStatus, data["status"])
			}
			if data["backend"] != tt.wantBackend {
				t.Errorf("expected backend %q, got %v", tt.wantBackend, data["backend"])
			}
			if _, ok := data["timestamp"]; !ok {
				t.Error("expected timestamp field")
			}
		})
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestDashboard(&memStore{}, 2), stubPinger{}, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()

	handlers.HandleStats(w, req)

	response := decodeEnvelope(t, w)
	data := response["data"].(map[string]any)

	expected := map[string]any{
		"record_count": float64(3),
		"countries":    float64(2),
		"page_size":    float64(2),
		"total_pages":  float64(2),
		"source":       services.SourceBackend,
	}
	for key, want := range expected {
		if data[key] != want {
			t.Errorf("expected %s=%v, got %v", key, want, data[key])
		}
	}
}
