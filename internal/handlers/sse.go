package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"pandemic-dashboard/internal/backend"
	"pandemic-dashboard/internal/chart"
	"pandemic-dashboard/internal/forms"
	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/observability"
	"pandemic-dashboard/internal/pagination"
	"pandemic-dashboard/internal/render"
	"pandemic-dashboard/internal/services"
)

const maxFormMemory = 1 << 20

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

// patchPage sends everything that depends on the visible page: rows, pager,
// summary cards, the form state and both chart datasets.
func (h *SSEHandlers) patchPage(sse *datastar.ServerSentEventGenerator, state render.State) error {
	view := h.dashboard.Page(state.Page, state.Filter)

	body, err := render.TableBody(view, state.Filter)
	if err != nil {
		return fmt.Errorf("render table body: %w", err)
	}
	pager, err := render.Pager(view, state.Filter)
	if err != nil {
		return fmt.Errorf("render pager: %w", err)
	}
	summary, err := render.Summary(h.dashboard.Summary(state.Filter))
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	formState, err := render.FormState(render.State{Page: view.Page, Filter: state.Filter})
	if err != nil {
		return fmt.Errorf("render form state: %w", err)
	}

	signals, err := json.Marshal(map[string]any{
		chart.TimeSeriesSignal: h.dashboard.TimeSeriesChart(state.Filter),
		chart.RatesSignal:      h.dashboard.MortalityChart(view.Page, state.Filter),
	})
	if err != nil {
		return fmt.Errorf("marshal chart signals: %w", err)
	}

	for _, html := range []string{body, pager, summary, formState} {
		if err := sse.PatchElements(html); err != nil {
			return err
		}
	}
	return sse.PatchSignals(signals)
}

func (h *SSEHandlers) patchAlert(sse *datastar.ServerSentEventGenerator, level render.AlertLevel, message string) error {
	html, err := render.Alert(level, message)
	if err != nil {
		return fmt.Errorf("render alert: %w", err)
	}
	return sse.PatchElements(html)
}

func (h *SSEHandlers) hideRowOptions(sse *datastar.ServerSentEventGenerator) error {
	html, err := render.HiddenRowOptions()
	if err != nil {
		return fmt.Errorf("render row options: %w", err)
	}
	return sse.PatchElements(html)
}

func (h *SSEHandlers) HandlePage(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	state := render.PageState(r.URL.Query())
	if err := h.patchPage(sse, state); err != nil {
		logger.Error("patch page", "page", state.Page, "error", err)
	}
}

func (h *SSEHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	state := render.PageState(r.URL.Query())
	state.Page = 1

	if err := h.dashboard.Reload(r.Context()); err != nil {
		logger.Error("reload records", "error", err)
		if err := h.patchAlert(sse, render.AlertError, failureMessage("Could not load data", err)); err != nil {
			logger.Error("patch alert", "error", err)
		}
		return
	}

	if err := h.patchPage(sse, state); err != nil {
		logger.Error("patch page", "error", err)
	}
}

func (h *SSEHandlers) HandleRowOptions(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	query := r.URL.Query()
	key, err := forms.ParseKey(query)
	if err != nil {
		if err := h.patchAlert(sse, render.AlertError, failureMessage("Invalid row", err)); err != nil {
			logger.Error("patch alert", "error", err)
		}
		return
	}

	record, ok := h.dashboard.Lookup(key)
	if !ok {
		if err := h.patchAlert(sse, render.AlertError, "Record not found"); err != nil {
			logger.Error("patch alert", "error", err)
		}
		return
	}

	html, err := render.RowOptions(record, render.ActionState(query))
	if err != nil {
		logger.Error("render row options", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		logger.Error("patch row options", "error", err)
	}
}

func (h *SSEHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	form, formErr := readForm(r)
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	if formErr != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Could not read the form", formErr), nil)
		return
	}

	record, err := forms.ParseRecord(form)
	if err != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Invalid record", err), nil)
		return
	}

	state := render.ActionState(form)
	m, err := h.dashboard.Create(r.Context(), record)
	if err != nil {
		logger.Error("create record", "country", record.Country, "date", record.Date, "error", err)
		h.finish(sse, logger, render.AlertError, failureMessage("Error while adding the record", err), nil)
		return
	}

	logger.Info("record created", "country", record.Country, "date", record.Date, "message", m.Message)
	state.Page = h.pageFor(m.Key, state)
	h.finish(sse, logger, render.AlertSuccess, "Record added successfully!", &state)
}

func (h *SSEHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	form, formErr := readForm(r)
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	if formErr != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Could not read the form", formErr), nil)
		return
	}

	key, patch, err := forms.ParsePatch(form)
	if err != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Invalid update", err), nil)
		return
	}

	state := render.ActionState(form)
	m, err := h.dashboard.Update(r.Context(), key, patch)
	if err != nil {
		logger.Error("update record", "country", key.Country, "date", key.Date, "error", err)
		h.finish(sse, logger, render.AlertError, failureMessage("Error while updating the record", err), nil)
		return
	}

	logger.Info("record updated", "country", key.Country, "date", key.Date, "message", m.Message)
	state.Page = h.pageFor(m.Key, state)
	h.finish(sse, logger, render.AlertSuccess, "Record updated successfully!", &state)
}

func (h *SSEHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	form, formErr := readForm(r)
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	if formErr != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Could not read the form", formErr), nil)
		return
	}

	key, err := forms.ParseKey(form)
	if err != nil {
		h.finish(sse, logger, render.AlertError, failureMessage("Invalid record key", err), nil)
		return
	}

	state := render.ActionState(form)
	m, err := h.dashboard.Delete(r.Context(), key)
	if err != nil {
		logger.Error("delete record", "country", key.Country, "date", key.Date, "error", err)
		h.finish(sse, logger, render.AlertError, failureMessage("Error while deleting the record", err), nil)
		return
	}

	logger.Info("record deleted", "country", key.Country, "date", key.Date, "removed", m.Removed)
	state.Page = pagination.Clamp(state.Page, h.dashboard.TotalPages(state.Filter))
	h.finish(sse, logger, render.AlertSuccess, "Record deleted successfully!", &state)
}

// pageFor is the page showing key under the caller's filter, or the
// caller's own page when the record is filtered out.
func (h *SSEHandlers) pageFor(key models.Key, state render.State) int {
	if page, ok := h.dashboard.PageOf(key, state.Filter); ok {
		return page
	}
	return pagination.Clamp(state.Page, h.dashboard.TotalPages(state.Filter))
}

// finish closes the row modal, shows the outcome and, after a successful
// mutation, re-renders the affected page.
func (h *SSEHandlers) finish(sse *datastar.ServerSentEventGenerator, logger *slog.Logger, level render.AlertLevel, message string, state *render.State) {
	if err := h.hideRowOptions(sse); err != nil {
		logger.Error("patch row options", "error", err)
		return
	}
	if err := h.patchAlert(sse, level, message); err != nil {
		logger.Error("patch alert", "error", err)
		return
	}
	if state == nil {
		return
	}
	if err := h.patchPage(sse, *state); err != nil {
		logger.Error("patch page", "page", state.Page, "error", err)
	}
}

// failureMessage turns an error into text fit for the alert banner.
func failureMessage(action string, err error) string {
	var (
		fieldErr  *forms.FieldError
		statusErr *backend.StatusError
	)
	switch {
	case stderrors.As(err, &fieldErr):
		return fmt.Sprintf("%s: %s", action, strings.ReplaceAll(err.Error(), "\n", "; "))
	case stderrors.Is(err, services.ErrRecordNotFound), backend.IsNotFound(err):
		return action + ": record not found"
	case stderrors.As(err, &statusErr):
		if statusErr.Detail != "" {
			return fmt.Sprintf("%s: %s", action, statusErr.Detail)
		}
		return fmt.Sprintf("%s: backend returned %d", action, statusErr.StatusCode)
	case backend.IsTransport(err):
		return action + ": backend unreachable"
	default:
		return action
	}
}

// readForm merges the query string with a form body. net/http leaves
// DELETE bodies unread, so those are decoded here.
func readForm(r *http.Request) (url.Values, error) {
	ct := r.Header.Get("Content-Type")
	if r.Method == http.MethodDelete && strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxFormMemory))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse body: %w", err)
		}
		for k, v := range r.URL.Query() {
			if _, ok := form[k]; !ok {
				form[k] = v
			}
		}
		return form, nil
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !stderrors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return r.Form, nil
}
