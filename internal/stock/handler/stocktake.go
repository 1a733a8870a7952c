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

// StockTakeHandler handles stock take session endpoints
type StockTakeHandler struct {
	stockTakes *service.StockTakeService
	logger     *logger.Logger
}

// NewStockTakeHandler creates a new stock take handler
func NewStockTakeHandler(stockTakes *service.StockTakeService, log *logger.Logger) *StockTakeHandler {
	return &StockTakeHandler{
		stockTakes: stockTakes,
		logger:     log,
	}
}

// Create creates a new session in PENDING
func (h *StockTakeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string     `json:"title" validate:"required,min=1,max=200"`
		Description *string    `json:"description"`
		Notes       *string    `json:"notes"`
		StartDate   *time.Time `json:"start_date"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	session, err := h.stockTakes.Create(r.Context(), req.Title, req.Description, req.Notes, req.StartDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, session)
}

// List lists sessions, most recent first
func (h *StockTakeHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *repository.SessionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := repository.SessionStatus(v)
		switch s {
		case repository.SessionPending, repository.SessionInProgress,
			repository.SessionCompleted, repository.SessionCancelled:
			status = &s
		default:
			httputil.Error(w, errors.Validation(map[string]string{
				"status": "must be one of: PENDING, IN_PROGRESS, COMPLETED, CANCELLED",
			}))
			return
		}
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	sessions, total, err := h.stockTakes.List(r.Context(), status, page, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, sessions, &httputil.Meta{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	})
}

// Get returns a session with its items
func (h *StockTakeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.stockTakes.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// Start opens a PENDING session for counting
func (h *StockTakeHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.stockTakes.Start(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// AddItems records counted quantities for an IN_PROGRESS session
func (h *StockTakeHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Items []struct {
			VariantID       string  `json:"variant_id" validate:"required,uuid"`
			CountedQuantity int     `json:"counted_quantity" validate:"gte=0"`
			Notes           *string `json:"notes"`
		} `json:"items" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	counts := make([]service.StockTakeItemCount, 0, len(req.Items))
	for _, item := range req.Items {
		counts = append(counts, service.StockTakeItemCount{
			VariantID:       item.VariantID,
			CountedQuantity: item.CountedQuantity,
			Notes:           item.Notes,
		})
	}

	session, err := h.stockTakes.AddItems(r.Context(), id, counts)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// Complete completes an IN_PROGRESS session, optionally correcting stock
func (h *StockTakeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Body is optional; auto_adjust defaults to false.
	var req struct {
		AutoAdjust bool    `json:"auto_adjust"`
		Notes      *string `json:"notes"`
	}
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	session, report, err := h.stockTakes.Complete(r.Context(), id, req.AutoAdjust)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"report":  report,
	})
}

// Cancel cancels a PENDING or IN_PROGRESS session
func (h *StockTakeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.stockTakes.Cancel(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// Report returns the reconciliation report of a COMPLETED session
func (h *StockTakeHandler) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.stockTakes.Report(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
