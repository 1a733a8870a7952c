package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sokoflow/sokoflow-backend/internal/stock/handler"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/internal/stock/service"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/httputil"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/testutil"
)

// stubVariantStore records the thresholds passed to LowStock.
type stubVariantStore struct {
	lowStockCalls []int
}

func (s *stubVariantStore) Create(ctx context.Context, v *repository.Variant) error { return nil }

func (s *stubVariantStore) GetByID(ctx context.Context, id string) (*repository.Variant, error) {
	return nil, errors.NotFound("variant")
}

func (s *stubVariantStore) GetBySKU(ctx context.Context, sku string) (*repository.Variant, error) {
	return nil, errors.NotFound("variant")
}

func (s *stubVariantStore) List(ctx context.Context, page, perPage int) ([]*repository.Variant, int64, error) {
	return nil, 0, nil
}

func (s *stubVariantStore) LowStock(ctx context.Context, threshold int) ([]*repository.Variant, error) {
	s.lowStockCalls = append(s.lowStockCalls, threshold)
	return []*repository.Variant{}, nil
}

func (s *stubVariantStore) StockValue(ctx context.Context) (*repository.StockValueSummary, error) {
	return &repository.StockValueSummary{}, nil
}

func (s *stubVariantStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	return nil
}

func (s *stubVariantStore) Deactivate(ctx context.Context, id string) error { return nil }

type stubLedgerStore struct{}

func (s *stubLedgerStore) Apply(ctx context.Context, inputs []repository.MovementInput) ([]*repository.Movement, error) {
	return nil, nil
}

func (s *stubLedgerStore) ListMovements(ctx context.Context, variantID string, filter repository.MovementFilter, page, perPage int) ([]*repository.Movement, int64, error) {
	return nil, 0, nil
}

type noopEvaluator struct{}

func (noopEvaluator) Evaluate(ctx context.Context, variantID string, newStock int) {}

func newStockRouter(variants *stubVariantStore) *chi.Mux {
	log := logger.New("stock-service-test", "test")
	ledgerSvc := service.NewLedgerService(&stubLedgerStore{}, noopEvaluator{}, testutil.NewMockPublisher(), log)
	analyticsSvc := service.NewAnalyticsService(variants)
	h := handler.NewStockHandler(ledgerSvc, analyticsSvc, log)

	r := chi.NewRouter()
	r.Get("/api/v1/stock/low-stock", h.LowStock)
	r.Post("/api/v1/stock/{variantID}/adjust", h.Adjust)
	return r
}

func TestLowStock_AbsentThresholdUsesDefault(t *testing.T) {
	variants := &stubVariantStore{}
	r := newStockRouter(variants)

	req := httptest.NewRequest("GET", "/api/v1/stock/low-stock", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
	require.Len(t, variants.lowStockCalls, 1)
	assert.Equal(t, service.DefaultLowStockThreshold, variants.lowStockCalls[0])
}

func TestLowStock_ExplicitZeroThresholdIsLiteral(t *testing.T) {
	variants := &stubVariantStore{}
	r := newStockRouter(variants)

	// threshold=0 means out-of-stock only, not the default of 10.
	req := httptest.NewRequest("GET", "/api/v1/stock/low-stock?threshold=0", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
	require.Len(t, variants.lowStockCalls, 1)
	assert.Equal(t, 0, variants.lowStockCalls[0])
}

func TestLowStock_NegativeThresholdRejected(t *testing.T) {
	variants := &stubVariantStore{}
	r := newStockRouter(variants)

	req := httptest.NewRequest("GET", "/api/v1/stock/low-stock?threshold=-1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 for a negative threshold. Body: %s", rr.Body.String())

	var resp httputil.Response
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Empty(t, variants.lowStockCalls)
}

func TestAdjust_ZeroQuantityReportsZeroDelta(t *testing.T) {
	r := newStockRouter(&stubVariantStore{})

	// An explicit zero must be called out as a zero delta, not as a
	// missing field.
	req := httptest.NewRequest("POST", "/api/v1/stock/variant-1/adjust",
		strings.NewReader(`{"quantity": 0}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 for a zero delta. Body: %s", rr.Body.String())

	var resp httputil.Response
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "must not equal 0", resp.Error.Details["quantity"])
}
