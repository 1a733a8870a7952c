package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("stock-service-test", "test")
}

// fakeLedgerStore applies movements against an in-memory stock map with
// the same all-or-nothing and non-negative semantics as the real store.
type fakeLedgerStore struct {
	stocks    map[string]int
	movements []*repository.Movement
	applyErr  error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{stocks: make(map[string]int)}
}

func (f *fakeLedgerStore) Apply(ctx context.Context, inputs []repository.MovementInput) ([]*repository.Movement, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}

	// Stage against a copy so a failing entry leaves nothing applied.
	staged := make(map[string]int, len(f.stocks))
	for k, v := range f.stocks {
		staged[k] = v
	}

	result := make([]*repository.Movement, 0, len(inputs))
	for _, in := range inputs {
		current, ok := staged[in.VariantID]
		if !ok {
			return nil, errors.NotFound("variant")
		}
		balance := current + in.QuantityDelta
		if balance < 0 {
			return nil, errors.InsufficientStock("stock cannot go below zero")
		}
		staged[in.VariantID] = balance

		result = append(result, &repository.Movement{
			ID:            uuid.New().String(),
			VariantID:     in.VariantID,
			Type:          in.Type,
			QuantityDelta: in.QuantityDelta,
			BalanceAfter:  balance,
			Reason:        in.Reason,
			Notes:         in.Notes,
			ActorID:       in.ActorID,
			Location:      in.Location,
			CostPrice:     in.CostPrice,
			CreatedAt:     time.Now(),
		})
	}

	f.stocks = staged
	f.movements = append(f.movements, result...)
	return result, nil
}

func (f *fakeLedgerStore) ListMovements(ctx context.Context, variantID string, filter repository.MovementFilter, page, perPage int) ([]*repository.Movement, int64, error) {
	if _, ok := f.stocks[variantID]; !ok {
		return nil, 0, errors.NotFound("variant")
	}

	var out []*repository.Movement
	for _, m := range f.movements {
		if m.VariantID == variantID {
			out = append(out, m)
		}
	}
	return out, int64(len(out)), nil
}

// fakeEvaluator records evaluation calls made after ledger commits.
type fakeEvaluator struct {
	calls []evaluateCall
}

type evaluateCall struct {
	VariantID string
	NewStock  int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, variantID string, newStock int) {
	f.calls = append(f.calls, evaluateCall{VariantID: variantID, NewStock: newStock})
}

// fakeVariantStore is an in-memory variant registry.
type fakeVariantStore struct {
	variants map[string]*repository.Variant
}

func newFakeVariantStore() *fakeVariantStore {
	return &fakeVariantStore{variants: make(map[string]*repository.Variant)}
}

func (f *fakeVariantStore) add(id, sku string, stock int, price string) *repository.Variant {
	v := &repository.Variant{
		ID:            id,
		SKU:           sku,
		Name:          sku,
		StockQuantity: stock,
		UnitPrice:     decimal.RequireFromString(price),
		IsActive:      true,
	}
	f.variants[id] = v
	return v
}

func (f *fakeVariantStore) Create(ctx context.Context, v *repository.Variant) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	f.variants[v.ID] = v
	return nil
}

func (f *fakeVariantStore) GetByID(ctx context.Context, id string) (*repository.Variant, error) {
	v, ok := f.variants[id]
	if !ok {
		return nil, errors.NotFound("variant")
	}
	return v, nil
}

func (f *fakeVariantStore) GetBySKU(ctx context.Context, sku string) (*repository.Variant, error) {
	for _, v := range f.variants {
		if v.SKU == sku {
			return v, nil
		}
	}
	return nil, errors.NotFound("variant")
}

func (f *fakeVariantStore) List(ctx context.Context, page, perPage int) ([]*repository.Variant, int64, error) {
	var out []*repository.Variant
	for _, v := range f.variants {
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

func (f *fakeVariantStore) LowStock(ctx context.Context, threshold int) ([]*repository.Variant, error) {
	var out []*repository.Variant
	for _, v := range f.variants {
		if v.IsActive && v.StockQuantity <= threshold {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVariantStore) StockValue(ctx context.Context) (*repository.StockValueSummary, error) {
	summary := &repository.StockValueSummary{}
	for _, v := range f.variants {
		if !v.IsActive {
			continue
		}
		summary.TotalVariants++
		summary.TotalUnits += v.StockQuantity
		summary.TotalValue = summary.TotalValue.Add(
			v.UnitPrice.Mul(decimal.NewFromInt(int64(v.StockQuantity))))
	}
	return summary, nil
}

func (f *fakeVariantStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	v, ok := f.variants[id]
	if !ok {
		return errors.NotFound("variant")
	}
	v.UnitPrice = price
	return nil
}

func (f *fakeVariantStore) Deactivate(ctx context.Context, id string) error {
	v, ok := f.variants[id]
	if !ok {
		return errors.NotFound("variant")
	}
	v.IsActive = false
	return nil
}

// fakeAlertStore mirrors the alert table semantics, including the
// one-active-alert-per-variant guarantee.
type fakeAlertStore struct {
	configs map[string]*repository.AlertConfig
	alerts  []*repository.Alert
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{configs: make(map[string]*repository.AlertConfig)}
}

func (f *fakeAlertStore) UpsertConfig(ctx context.Context, variantID string, threshold int) (*repository.AlertConfig, error) {
	cfg := &repository.AlertConfig{VariantID: variantID, Threshold: threshold}
	f.configs[variantID] = cfg
	return cfg, nil
}

func (f *fakeAlertStore) GetConfig(ctx context.Context, variantID string) (*repository.AlertConfig, error) {
	cfg, ok := f.configs[variantID]
	if !ok {
		return nil, errors.NotFound("alert configuration")
	}
	return cfg, nil
}

func (f *fakeAlertStore) DeleteConfig(ctx context.Context, variantID string) error {
	if _, ok := f.configs[variantID]; !ok {
		return errors.NotFound("alert configuration")
	}
	delete(f.configs, variantID)
	return nil
}

func (f *fakeAlertStore) GetActiveAlert(ctx context.Context, variantID string) (*repository.Alert, error) {
	for _, a := range f.alerts {
		if a.VariantID == variantID && a.Active {
			return a, nil
		}
	}
	return nil, errors.NotFound("active alert")
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, variantID string, threshold, stockAtTrigger int) (*repository.Alert, error) {
	if _, err := f.GetActiveAlert(ctx, variantID); err == nil {
		return nil, errors.Conflict("an active alert already exists for this variant")
	}
	a := &repository.Alert{
		ID:             uuid.New().String(),
		VariantID:      variantID,
		Threshold:      threshold,
		StockAtTrigger: stockAtTrigger,
		Active:         true,
		TriggeredAt:    time.Now(),
	}
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeAlertStore) ResolveActive(ctx context.Context, variantID, resolvedBy string) (bool, error) {
	for _, a := range f.alerts {
		if a.VariantID == variantID && a.Active {
			now := time.Now()
			a.Active = false
			a.ResolvedAt = &now
			a.ResolvedBy = &resolvedBy
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAlertStore) ListActive(ctx context.Context) ([]*repository.Alert, error) {
	var out []*repository.Alert
	for _, a := range f.alerts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) History(ctx context.Context, filter repository.AlertHistoryFilter, page, perPage int) ([]*repository.Alert, int64, error) {
	return f.alerts, int64(len(f.alerts)), nil
}

func (f *fakeAlertStore) Stats(ctx context.Context) (*repository.AlertStats, error) {
	stats := &repository.AlertStats{
		TotalTriggered:  len(f.alerts),
		ConfiguredCount: len(f.configs),
	}
	for _, a := range f.alerts {
		if a.Active {
			stats.ActiveCount++
		} else {
			stats.ResolvedCount++
		}
	}
	return stats, nil
}

// fakeStockTakeStore mirrors the session state machine, the idempotent
// item upsert, and the completion transaction.
type fakeStockTakeStore struct {
	sessions    map[string]*repository.StockTakeSession
	variants    *fakeVariantStore
	ledger      *fakeLedgerStore
	corrections []repository.MovementInput
}

func newFakeStockTakeStore(variants *fakeVariantStore, ledger *fakeLedgerStore) *fakeStockTakeStore {
	return &fakeStockTakeStore{
		sessions: make(map[string]*repository.StockTakeSession),
		variants: variants,
		ledger:   ledger,
	}
}

func (f *fakeStockTakeStore) Create(ctx context.Context, s *repository.StockTakeSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = repository.SessionPending
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStockTakeStore) GetByID(ctx context.Context, id string) (*repository.StockTakeSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.NotFound("stock take session")
	}
	return s, nil
}

func (f *fakeStockTakeStore) List(ctx context.Context, status *repository.SessionStatus, page, perPage int) ([]*repository.StockTakeSession, int64, error) {
	var out []*repository.StockTakeSession
	for _, s := range f.sessions {
		if status == nil || s.Status == *status {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStockTakeStore) Start(ctx context.Context, id string) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.NotFound("stock take session")
	}
	if s.Status != repository.SessionPending {
		return errors.InvalidState("cannot start a session in status " + string(s.Status))
	}
	now := time.Now()
	s.Status = repository.SessionInProgress
	s.StartedAt = &now
	return nil
}

func (f *fakeStockTakeStore) Cancel(ctx context.Context, id string) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.NotFound("stock take session")
	}
	if s.Status != repository.SessionPending && s.Status != repository.SessionInProgress {
		return errors.InvalidState("cannot cancel a session in status " + string(s.Status))
	}
	now := time.Now()
	s.Status = repository.SessionCancelled
	s.CancelledAt = &now
	return nil
}

func (f *fakeStockTakeStore) UpsertItems(ctx context.Context, sessionID string, inputs []repository.StockTakeItemInput) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return errors.NotFound("stock take session")
	}
	if s.Status != repository.SessionInProgress {
		return errors.InvalidState("cannot add items to a session in status " + string(s.Status))
	}

	for _, in := range inputs {
		variant, err := f.variants.GetByID(ctx, in.VariantID)
		if err != nil {
			return err
		}

		updated := false
		for _, item := range s.Items {
			if item.VariantID == in.VariantID {
				item.CountedQuantity = in.CountedQuantity
				item.Notes = in.Notes
				updated = true
				break
			}
		}
		if updated {
			continue
		}

		s.Items = append(s.Items, &repository.StockTakeItem{
			ID:              uuid.New().String(),
			SessionID:       sessionID,
			VariantID:       in.VariantID,
			SKU:             variant.SKU,
			SystemQuantity:  variant.StockQuantity,
			CountedQuantity: in.CountedQuantity,
			UnitPrice:       variant.UnitPrice,
			Notes:           in.Notes,
		})
	}

	return nil
}

func (f *fakeStockTakeStore) Complete(ctx context.Context, id, completedBy string, autoAdjust bool, build repository.CompletionFunc) error {
	s, ok := f.sessions[id]
	if !ok {
		return errors.NotFound("stock take session")
	}
	if s.Status != repository.SessionInProgress {
		return errors.InvalidState("cannot complete a session in status " + string(s.Status))
	}

	// Like the real store, the caller computes the report from the items
	// as they stand at completion time.
	report, corrections, err := build(s.Items)
	if err != nil {
		return err
	}

	if len(corrections) > 0 {
		if _, err := f.ledger.Apply(ctx, corrections); err != nil {
			return err
		}
	}

	now := time.Now()
	s.Status = repository.SessionCompleted
	s.CompletedAt = &now
	s.CompletedBy = &completedBy
	s.AutoAdjusted = autoAdjust
	s.Report = report
	f.corrections = append(f.corrections, corrections...)
	return nil
}
