package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
)

// LedgerStore persists stock movements together with their variant stock
// updates.
type LedgerStore interface {
	Apply(ctx context.Context, inputs []repository.MovementInput) ([]*repository.Movement, error)
	ListMovements(ctx context.Context, variantID string, filter repository.MovementFilter, page, perPage int) ([]*repository.Movement, int64, error)
}

// VariantStore persists variants.
type VariantStore interface {
	Create(ctx context.Context, v *repository.Variant) error
	GetByID(ctx context.Context, id string) (*repository.Variant, error)
	GetBySKU(ctx context.Context, sku string) (*repository.Variant, error)
	List(ctx context.Context, page, perPage int) ([]*repository.Variant, int64, error)
	LowStock(ctx context.Context, threshold int) ([]*repository.Variant, error)
	StockValue(ctx context.Context) (*repository.StockValueSummary, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error
	Deactivate(ctx context.Context, id string) error
}

// AlertStore persists alert configurations and alert instances.
type AlertStore interface {
	UpsertConfig(ctx context.Context, variantID string, threshold int) (*repository.AlertConfig, error)
	GetConfig(ctx context.Context, variantID string) (*repository.AlertConfig, error)
	DeleteConfig(ctx context.Context, variantID string) error
	GetActiveAlert(ctx context.Context, variantID string) (*repository.Alert, error)
	CreateAlert(ctx context.Context, variantID string, threshold, stockAtTrigger int) (*repository.Alert, error)
	ResolveActive(ctx context.Context, variantID, resolvedBy string) (bool, error)
	ListActive(ctx context.Context) ([]*repository.Alert, error)
	History(ctx context.Context, filter repository.AlertHistoryFilter, page, perPage int) ([]*repository.Alert, int64, error)
	Stats(ctx context.Context) (*repository.AlertStats, error)
}

// StockTakeStore persists stock take sessions and their items.
type StockTakeStore interface {
	Create(ctx context.Context, s *repository.StockTakeSession) error
	GetByID(ctx context.Context, id string) (*repository.StockTakeSession, error)
	List(ctx context.Context, status *repository.SessionStatus, page, perPage int) ([]*repository.StockTakeSession, int64, error)
	Start(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	UpsertItems(ctx context.Context, sessionID string, inputs []repository.StockTakeItemInput) error
	Complete(ctx context.Context, id, completedBy string, autoAdjust bool, build repository.CompletionFunc) error
}

// EventPublisher publishes domain events. Publish failures are logged and
// never fail the mutation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockEvaluator re-checks alert thresholds after a stock level change.
type StockEvaluator interface {
	Evaluate(ctx context.Context, variantID string, newStock int)
}
