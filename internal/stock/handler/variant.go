package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/service"
	"github.com/sokoflow/sokoflow-backend/pkg/httputil"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
)

// VariantHandler handles variant registry endpoints
type VariantHandler struct {
	variants *service.VariantService
	logger   *logger.Logger
}

// NewVariantHandler creates a new variant handler
func NewVariantHandler(variants *service.VariantService, log *logger.Logger) *VariantHandler {
	return &VariantHandler{
		variants: variants,
		logger:   log,
	}
}

// Create registers a new variant with zero opening stock
func (h *VariantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU       string          `json:"sku" validate:"required,min=1,max=100"`
		Name      string          `json:"name" validate:"required,min=1,max=200"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	variant, err := h.variants.Create(r.Context(), req.SKU, req.Name, req.UnitPrice)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, variant)
}

// List lists active variants
func (h *VariantHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	variants, total, err := h.variants.List(r.Context(), page, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, variants, &httputil.Meta{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	})
}

// Get returns a variant by ID
func (h *VariantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	variant, err := h.variants.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, variant)
}

// GetBySKU returns a variant by SKU
func (h *VariantHandler) GetBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	variant, err := h.variants.GetBySKU(r.Context(), sku)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, variant)
}

// UpdatePrice updates a variant's unit price
func (h *VariantHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	variant, err := h.variants.UpdatePrice(r.Context(), id, req.UnitPrice)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, variant)
}

// Deactivate marks a variant as inactive
func (h *VariantHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.variants.Deactivate(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
