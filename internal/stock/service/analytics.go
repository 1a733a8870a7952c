package service

import (
	"context"

	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// DefaultLowStockThreshold is what callers fall back to when a low-stock
// query names no threshold. An explicit zero is taken literally.
const DefaultLowStockThreshold = 10

// AnalyticsService exposes read-only stock valuation projections.
type AnalyticsService struct {
	variants VariantStore
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(variants VariantStore) *AnalyticsService {
	return &AnalyticsService{variants: variants}
}

// LowStockVariants returns active variants at or below the threshold
func (s *AnalyticsService) LowStockVariants(ctx context.Context, threshold int) ([]*repository.Variant, error) {
	if threshold < 0 {
		return nil, errors.Validation(map[string]string{
			"threshold": "must be at least 0",
		})
	}

	return s.variants.LowStock(ctx, threshold)
}

// StockValue returns the total on-hand valuation across all active variants
func (s *AnalyticsService) StockValue(ctx context.Context) (*repository.StockValueSummary, error) {
	return s.variants.StockValue(ctx)
}
