package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pandemic-dashboard/internal/handlers"
	"pandemic-dashboard/internal/services"
)

type Server struct {
	dashboard   *services.Dashboard
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
	gatherer    prometheus.Gatherer
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(dashboard *services.Dashboard, backend handlers.Pinger, gatherer prometheus.Gatherer, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		dashboard:   dashboard,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(dashboard, backend, logger),
		sseHandlers: handlers.NewSSEHandlers(dashboard, logger),
		gatherer:    gatherer,
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// REST API endpoints
	s.mux.HandleFunc("GET /api/records", s.apiHandlers.HandleRecords)
	s.mux.HandleFunc("GET /api/charts/timeseries", s.apiHandlers.HandleTimeSeries)
	s.mux.HandleFunc("GET /api/charts/categories", s.apiHandlers.HandleCategories)
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("POST /api/reload", s.apiHandlers.HandleReload)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/page", s.sseHandlers.HandlePage)
	s.mux.HandleFunc("GET /sse/reload", s.sseHandlers.HandleReload)
	s.mux.HandleFunc("GET /sse/rows/options", s.sseHandlers.HandleRowOptions)
	s.mux.HandleFunc("POST /sse/records", s.sseHandlers.HandleCreate)
	s.mux.HandleFunc("PUT /sse/records", s.sseHandlers.HandleUpdate)
	s.mux.HandleFunc("DELETE /sse/records", s.sseHandlers.HandleDelete)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
