package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/internal/stock/service"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/httputil"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
)

// AlertHandler handles low-stock alert endpoints
type AlertHandler struct {
	alerts *service.AlertService
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: log,
	}
}

// Set upserts the threshold configuration for a variant
func (h *AlertHandler) Set(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	var req struct {
		Threshold int `json:"threshold" validate:"required,min=1"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	cfg, err := h.alerts.SetAlert(r.Context(), variantID, req.Threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cfg)
}

// Disable removes the threshold configuration for a variant
func (h *AlertHandler) Disable(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	if err := h.alerts.DisableAlert(r.Context(), variantID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Resolve acknowledges the active alert for a variant
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	if err := h.alerts.ResolveAlert(r.Context(), variantID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Active lists all currently active alerts
func (h *AlertHandler) Active(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ActiveAlerts(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alerts)
}

// History lists alert instances with optional filters
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	var filter repository.AlertHistoryFilter

	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved := v == "true"
		filter.Resolved = &resolved
	}
	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{
				"startDate": "must be an RFC3339 timestamp",
			}))
			return
		}
		filter.StartDate = &t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{
				"endDate": "must be an RFC3339 timestamp",
			}))
			return
		}
		filter.EndDate = &t
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	alerts, total, err := h.alerts.AlertHistory(r.Context(), filter, page, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, &httputil.Meta{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	})
}

// Stats returns aggregate alerting counters
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerts.AlertStats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
