package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// VariantService manages the minimal variant registry the ledger runs
// against. Stock quantities are never written here; only ledger
// operations mutate stock.
type VariantService struct {
	variants VariantStore
}

// NewVariantService creates a new variant service
func NewVariantService(variants VariantStore) *VariantService {
	return &VariantService{variants: variants}
}

// Create registers a new variant with zero opening stock. Opening
// inventory enters through an ADDITION movement so the ledger stays the
// sole source of stock history.
func (s *VariantService) Create(ctx context.Context, sku, name string, unitPrice decimal.Decimal) (*repository.Variant, error) {
	details := map[string]string{}
	if sku == "" {
		details["sku"] = "this field is required"
	}
	if name == "" {
		details["name"] = "this field is required"
	}
	if unitPrice.IsNegative() {
		details["unit_price"] = "must be at least 0"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	variant := &repository.Variant{
		SKU:       sku,
		Name:      name,
		UnitPrice: unitPrice,
		IsActive:  true,
	}

	if err := s.variants.Create(ctx, variant); err != nil {
		return nil, err
	}

	return variant, nil
}

// Get returns a variant by ID
func (s *VariantService) Get(ctx context.Context, id string) (*repository.Variant, error) {
	return s.variants.GetByID(ctx, id)
}

// GetBySKU returns a variant by SKU
func (s *VariantService) GetBySKU(ctx context.Context, sku string) (*repository.Variant, error) {
	return s.variants.GetBySKU(ctx, sku)
}

// List lists active variants with pagination
func (s *VariantService) List(ctx context.Context, page, perPage int) ([]*repository.Variant, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.variants.List(ctx, page, perPage)
}

// UpdatePrice updates a variant's unit price
func (s *VariantService) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*repository.Variant, error) {
	if price.IsNegative() {
		return nil, errors.Validation(map[string]string{
			"unit_price": "must be at least 0",
		})
	}

	if err := s.variants.UpdatePrice(ctx, id, price); err != nil {
		return nil, err
	}

	return s.variants.GetByID(ctx, id)
}

// Deactivate marks a variant as inactive; its ledger history is retained
func (s *VariantService) Deactivate(ctx context.Context, id string) error {
	return s.variants.Deactivate(ctx, id)
}
