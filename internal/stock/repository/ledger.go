package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sokoflow/sokoflow-backend/pkg/database"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// LedgerRepository owns the append-only stock movement ledger. Every
// mutation appends a movement and updates the variant's stock in the same
// transaction; the two are never observable apart.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Apply atomically applies a batch of movements: either every movement
// commits together with its stock update, or none do. Serialization and
// deadlock failures are retried a bounded number of times.
func (r *LedgerRepository) Apply(ctx context.Context, inputs []MovementInput) ([]*Movement, error) {
	var movements []*Movement

	err := r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		movements, txErr = r.ApplyTx(ctx, tx, inputs)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return movements, nil
}

// ApplyTx applies a batch of movements inside an existing transaction.
// Callers composing larger units of work (stock-take completion) use this
// to fold corrective movements into their own transaction.
//
// Each variant row is locked with SELECT ... FOR UPDATE before its balance
// is read, so concurrent mutations on the same variant serialize and every
// movement's balance_after reflects a consistent application order.
func (r *LedgerRepository) ApplyTx(ctx context.Context, tx *sqlx.Tx, inputs []MovementInput) ([]*Movement, error) {
	movements := make([]*Movement, 0, len(inputs))

	for _, in := range inputs {
		var current int
		err := tx.GetContext(ctx, &current,
			`SELECT stock_quantity FROM variants WHERE id = $1 FOR UPDATE`,
			in.VariantID,
		)
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("variant")
		}
		if err != nil {
			return nil, err
		}

		balance := current + in.QuantityDelta
		if balance < 0 {
			return nil, errors.InsufficientStock(fmt.Sprintf(
				"variant %s has %d in stock, movement of %d would leave %d",
				in.VariantID, current, in.QuantityDelta, balance,
			))
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE variants SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`,
			in.VariantID, balance,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return nil, appErr
			}
			return nil, err
		}

		m := &Movement{
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
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO stock_movements (
				id, variant_id, movement_type, quantity_delta, balance_after,
				reason, notes, actor_id, location, cost_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`,
			m.ID, m.VariantID, m.Type, m.QuantityDelta, m.BalanceAfter,
			m.Reason, m.Notes, m.ActorID, m.Location, m.CostPrice,
		).Scan(&m.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return nil, appErr
			}
			return nil, err
		}

		movements = append(movements, m)
	}

	return movements, nil
}

// ListMovements returns a variant's movement history in reverse-chronological
// order, optionally filtered by movement type and date range. An unknown
// variant is an error, not an empty history.
func (r *LedgerRepository) ListMovements(ctx context.Context, variantID string, filter MovementFilter, page, perPage int) ([]*Movement, int64, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, errors.NotFound("variant")
	}

	where := `WHERE variant_id = $1`
	args := []interface{}{variantID}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(` AND movement_type = $%d`, len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_movements ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	args = append(args, perPage, offset)
	query := fmt.Sprintf(`
		SELECT id, variant_id, movement_type, quantity_delta, balance_after,
		       reason, notes, actor_id, location, cost_price, created_at
		FROM stock_movements %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}
