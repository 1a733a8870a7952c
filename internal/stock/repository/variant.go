package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/pkg/database"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// Variant is a sellable unit. Its stock quantity is mutated only through
// ledger operations; price and identity are owned by the catalog.
type Variant struct {
	ID            string          `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StockValueSummary is the on-hand valuation across all active variants.
type StockValueSummary struct {
	TotalVariants int             `db:"total_variants" json:"total_variants"`
	TotalUnits    int             `db:"total_units" json:"total_units"`
	TotalValue    decimal.Decimal `db:"total_value" json:"total_value"`
}

// VariantRepository handles variant persistence
type VariantRepository struct {
	db *database.DB
}

// NewVariantRepository creates a new variant repository
func NewVariantRepository(db *database.DB) *VariantRepository {
	return &VariantRepository{db: db}
}

// Create creates a new variant
func (r *VariantRepository) Create(ctx context.Context, v *Variant) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	query := `
		INSERT INTO variants (id, sku, name, stock_quantity, unit_price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		v.ID, v.SKU, v.Name, v.StockQuantity, v.UnitPrice, v.IsActive,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a variant by ID
func (r *VariantRepository) GetByID(ctx context.Context, id string) (*Variant, error) {
	var v Variant

	query := `
		SELECT id, sku, name, stock_quantity, unit_price, is_active, created_at, updated_at
		FROM variants WHERE id = $1
	`

	err := r.db.GetContext(ctx, &v, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("variant")
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// GetBySKU gets a variant by SKU
func (r *VariantRepository) GetBySKU(ctx context.Context, sku string) (*Variant, error) {
	var v Variant

	query := `
		SELECT id, sku, name, stock_quantity, unit_price, is_active, created_at, updated_at
		FROM variants WHERE sku = $1
	`

	err := r.db.GetContext(ctx, &v, query, sku)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("variant")
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// List lists variants with pagination
func (r *VariantRepository) List(ctx context.Context, page, perPage int) ([]*Variant, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM variants WHERE is_active = true`
	if err := r.db.GetContext(ctx, &total, countQuery); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT id, sku, name, stock_quantity, unit_price, is_active, created_at, updated_at
		FROM variants WHERE is_active = true
		ORDER BY sku
		LIMIT $1 OFFSET $2
	`

	var variants []*Variant
	if err := r.db.SelectContext(ctx, &variants, query, perPage, offset); err != nil {
		return nil, 0, err
	}

	return variants, total, nil
}

// LowStock returns active variants at or below the given threshold,
// lowest stock first.
func (r *VariantRepository) LowStock(ctx context.Context, threshold int) ([]*Variant, error) {
	query := `
		SELECT id, sku, name, stock_quantity, unit_price, is_active, created_at, updated_at
		FROM variants
		WHERE is_active = true AND stock_quantity <= $1
		ORDER BY stock_quantity, sku
	`

	var variants []*Variant
	if err := r.db.SelectContext(ctx, &variants, query, threshold); err != nil {
		return nil, err
	}

	return variants, nil
}

// StockValue returns the total on-hand valuation across all active variants.
// The multiplication runs in SQL on the NUMERIC price column, so the sum is
// exact regardless of how many rows it spans.
func (r *VariantRepository) StockValue(ctx context.Context) (*StockValueSummary, error) {
	var summary StockValueSummary

	query := `
		SELECT COUNT(*) AS total_variants,
		       COALESCE(SUM(stock_quantity), 0) AS total_units,
		       COALESCE(SUM(stock_quantity * unit_price), 0) AS total_value
		FROM variants WHERE is_active = true
	`

	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, err
	}

	return &summary, nil
}

// UpdatePrice updates a variant's unit price
func (r *VariantRepository) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	query := `UPDATE variants SET unit_price = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, price)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("variant")
	}

	return nil
}

// Deactivate marks a variant as inactive. The ledger history is retained.
func (r *VariantRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE variants SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("variant")
	}

	return nil
}
