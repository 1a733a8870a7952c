package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/internal/stock/service"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/httputil"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
)

// StockHandler handles ledger mutation and movement history endpoints
type StockHandler struct {
	ledger    *service.LedgerService
	analytics *service.AnalyticsService
	logger    *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger *service.LedgerService, analytics *service.AnalyticsService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		ledger:    ledger,
		analytics: analytics,
		logger:    log,
	}
}

type movementMetaRequest struct {
	Reason   *string `json:"reason"`
	Notes    *string `json:"notes"`
	Location *string `json:"location"`
}

func (m movementMetaRequest) toMeta() service.MovementMeta {
	return service.MovementMeta{
		Reason:   m.Reason,
		Notes:    m.Notes,
		Location: m.Location,
	}
}

// Add adds stock to a variant
func (h *StockHandler) Add(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	var req struct {
		Quantity  int              `json:"quantity" validate:"required,min=1"`
		CostPrice *decimal.Decimal `json:"cost_price"`
		movementMetaRequest
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.CostPrice != nil && req.CostPrice.IsNegative() {
		httputil.Error(w, errors.Validation(map[string]string{
			"cost_price": "must not be negative",
		}))
		return
	}

	meta := req.toMeta()
	meta.CostPrice = req.CostPrice

	movement, err := h.ledger.AddStock(r.Context(), variantID, req.Quantity, meta)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Adjust changes a variant's stock by a signed delta
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	// No validate tag on Quantity: the validator cannot tell an explicit
	// zero from an absent int field. The service rejects a zero delta.
	var req struct {
		Quantity int `json:"quantity"`
		movementMetaRequest
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.ledger.AdjustStock(r.Context(), variantID, req.Quantity, req.toMeta())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Damage records damaged stock, always decrementing
func (h *StockHandler) Damage(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	var req struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
		movementMetaRequest
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.ledger.RecordDamage(r.Context(), variantID, req.Quantity, req.toMeta())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// BulkUpdate applies a batch of stock updates atomically
func (h *StockHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []struct {
			VariantID    string  `json:"variant_id" validate:"required,uuid"`
			Quantity     int     `json:"quantity"`
			MovementType *string `json:"movement_type"`
			Reason       *string `json:"reason"`
			Notes        *string `json:"notes"`
		} `json:"updates" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	entries := make([]service.BulkUpdateEntry, 0, len(req.Updates))
	for _, u := range req.Updates {
		entry := service.BulkUpdateEntry{
			VariantID: u.VariantID,
			Quantity:  u.Quantity,
			Reason:    u.Reason,
			Notes:     u.Notes,
		}
		if u.MovementType != nil {
			t := repository.MovementType(*u.MovementType)
			entry.Type = &t
		}
		entries = append(entries, entry)
	}

	movements, err := h.ledger.BulkUpdate(r.Context(), entries)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movements)
}

// Movements returns a variant's movement history
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")

	filter, err := parseMovementFilter(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	movements, total, err := h.ledger.GetMovements(r.Context(), variantID, filter, page, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	})
}

// LowStock lists variants at or below a threshold. An absent threshold
// falls back to the default; threshold=0 means exactly zero.
func (h *StockHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt(r, "threshold", service.DefaultLowStockThreshold)

	variants, err := h.analytics.LowStockVariants(r.Context(), threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, variants)
}

// StockValue returns the total on-hand valuation
func (h *StockHandler) StockValue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.StockValue(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

func parseMovementFilter(r *http.Request) (repository.MovementFilter, error) {
	var filter repository.MovementFilter

	if v := r.URL.Query().Get("movementType"); v != "" {
		t := repository.MovementType(v)
		if !t.Valid() {
			return filter, errors.Validation(map[string]string{
				"movementType": "unknown movement type " + v,
			})
		}
		filter.Type = &t
	}

	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.Validation(map[string]string{
				"startDate": "must be an RFC3339 timestamp",
			})
		}
		filter.StartDate = &t
	}

	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.Validation(map[string]string{
				"endDate": "must be an RFC3339 timestamp",
			})
		}
		filter.EndDate = &t
	}

	return filter, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func totalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
