package handlers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"pandemic-dashboard/internal/backend"
	"pandemic-dashboard/internal/errors"
	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/observability"
	"pandemic-dashboard/internal/render"
	"pandemic-dashboard/internal/services"
)

const pingTimeout = 3 * time.Second

// Pinger reports whether the statistics backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandlers struct {
	dashboard *services.Dashboard
	backend   Pinger
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, backend Pinger, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		backend:   backend,
		logger:    logger,
	}
}

var noCache = map[string]string{
	"Cache-Control": "no-cache",
}

type pageInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type recordsPage struct {
	Data       []models.Record `json:"data"`
	Pagination pageInfo        `json:"pagination"`
	Filter     models.Filter   `json:"filter"`
}

func (h *APIHandlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	state := render.PageState(r.URL.Query())
	view := h.dashboard.Page(state.Page, state.Filter)

	items := view.Items
	if items == nil {
		items = []models.Record{}
	}

	errors.WriteSuccessWithHeaders(w, recordsPage{
		Data: items,
		Pagination: pageInfo{
			Page:       view.Page,
			PageSize:   view.PageSize,
			Total:      view.Total,
			TotalPages: view.TotalPages,
		},
		Filter: state.Filter,
	}, noCache)
}

func (h *APIHandlers) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
	state := render.PageState(r.URL.Query())
	errors.WriteSuccessWithHeaders(w, h.dashboard.TimeSeriesChart(state.Filter), noCache)
}

func (h *APIHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	state := render.PageState(r.URL.Query())
	errors.WriteSuccessWithHeaders(w, h.dashboard.MortalityChart(state.Page, state.Filter), noCache)
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	state := render.PageState(r.URL.Query())
	errors.WriteSuccessWithHeaders(w, h.dashboard.Summary(state.Filter), noCache)
}

// HandleReload refetches the result set and reports the new size.
func (h *APIHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.Reload(r.Context()); err != nil {
		h.writeError(w, r, err, "Could not load data from the backend")
		return
	}
	errors.WriteSuccess(w, h.dashboard.Stats())
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"backend":   "reachable",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Warn("backend ping failed", "error", err)
		healthData["status"] = "degraded"
		healthData["backend"] = "unreachable"
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.dashboard.Stats())
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	errors.WriteError(w, r, h.logger, toAppError(err, message))
}

func toAppError(err error, message string) *errors.AppError {
	var statusErr *backend.StatusError
	switch {
	case stderrors.Is(err, services.ErrRecordNotFound), backend.IsNotFound(err):
		return errors.NotFoundWrap(err, "Record not found")
	case stderrors.As(err, &statusErr):
		return errors.Upstream(err, message).WithDetails(statusErr.Detail)
	case backend.IsTransport(err):
		return errors.Upstream(err, message).WithDetails("backend unreachable")
	default:
		return errors.InternalWrap(err, message)
	}
}
