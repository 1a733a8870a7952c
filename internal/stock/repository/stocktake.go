package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/pkg/database"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// SessionStatus is the state of a stock take session. Transitions are
// strict: PENDING -> IN_PROGRESS -> {COMPLETED | CANCELLED}, and nothing
// leaves COMPLETED or CANCELLED.
type SessionStatus string

const (
	SessionPending    SessionStatus = "PENDING"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// StockTakeSession is one physical inventory audit. Sessions are retained
// forever for audit history.
type StockTakeSession struct {
	ID           string          `db:"id" json:"id"`
	Title        string          `db:"title" json:"title"`
	Description  *string         `db:"description" json:"description,omitempty"`
	Status       SessionStatus   `db:"status" json:"status"`
	Notes        *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	ScheduledFor *time.Time      `db:"scheduled_for" json:"scheduled_for,omitempty"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedBy  *string         `db:"completed_by" json:"completed_by,omitempty"`
	AutoAdjusted bool            `db:"auto_adjusted" json:"auto_adjusted"`
	Report       json.RawMessage `db:"report" json:"report,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`

	Items []*StockTakeItem `db:"-" json:"items,omitempty"`
}

// StockTakeItem is one counted line in a session. SystemQuantity and
// UnitPrice are snapshotted from the variant when the item is first added
// and never change afterwards; CountedQuantity may be re-submitted while
// the session is IN_PROGRESS.
type StockTakeItem struct {
	ID              string          `db:"id" json:"id"`
	SessionID       string          `db:"session_id" json:"session_id"`
	VariantID       string          `db:"variant_id" json:"variant_id"`
	SKU             string          `db:"sku" json:"sku"`
	VariantName     string          `db:"variant_name" json:"variant_name"`
	SystemQuantity  int             `db:"system_quantity" json:"system_quantity"`
	CountedQuantity int             `db:"counted_quantity" json:"counted_quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// StockTakeItemInput is one submitted count.
type StockTakeItemInput struct {
	VariantID       string
	CountedQuantity int
	Notes           *string
}

// StockTakeRepository handles stock take session persistence. It embeds the
// ledger repository so completion can fold corrective movements into the
// same transaction as the status transition.
type StockTakeRepository struct {
	db     *database.DB
	ledger *LedgerRepository
}

// NewStockTakeRepository creates a new stock take repository
func NewStockTakeRepository(db *database.DB, ledger *LedgerRepository) *StockTakeRepository {
	return &StockTakeRepository{db: db, ledger: ledger}
}

const sessionColumns = `
	id, title, description, status, notes, created_by, scheduled_for,
	started_at, completed_at, cancelled_at, completed_by,
	auto_adjusted, report, created_at, updated_at
`

const itemColumns = `
	i.id, i.session_id, i.variant_id, v.sku, v.name AS variant_name,
	i.system_quantity, i.counted_quantity, i.unit_price, i.notes,
	i.created_at, i.updated_at
`

// Create creates a new session in PENDING with an empty item list
func (r *StockTakeRepository) Create(ctx context.Context, s *StockTakeSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = SessionPending

	query := `
		INSERT INTO stock_take_sessions (id, title, description, status, notes, created_by, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		s.ID, s.Title, s.Description, s.Status, s.Notes, s.CreatedBy, s.ScheduledFor,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a session with its items
func (r *StockTakeRepository) GetByID(ctx context.Context, id string) (*StockTakeSession, error) {
	var s StockTakeSession

	query := `SELECT ` + sessionColumns + ` FROM stock_take_sessions WHERE id = $1`

	err := r.db.GetContext(ctx, &s, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("stock take session")
	}
	if err != nil {
		return nil, err
	}

	items, err := r.listItems(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	s.Items = items

	return &s, nil
}

func (r *StockTakeRepository) listItems(ctx context.Context, q sqlx.QueryerContext, sessionID string) ([]*StockTakeItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM stock_take_items i
		JOIN variants v ON v.id = i.variant_id
		WHERE i.session_id = $1
		ORDER BY v.sku
	`

	var items []*StockTakeItem
	if err := sqlx.SelectContext(ctx, q, &items, query, sessionID); err != nil {
		return nil, err
	}

	return items, nil
}

// List lists sessions with pagination, most recent first, optionally
// filtered by status. Items are not loaded.
func (r *StockTakeRepository) List(ctx context.Context, status *SessionStatus, page, perPage int) ([]*StockTakeSession, int64, error) {
	where := ``
	args := []interface{}{}

	if status != nil {
		where = `WHERE status = $1`
		args = append(args, *status)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_take_sessions ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + sessionColumns + ` FROM stock_take_sessions ` + where +
		` ORDER BY created_at DESC`
	if status != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var sessions []*StockTakeSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// Start transitions a session from PENDING to IN_PROGRESS. The transition
// is a compare-and-set on the status column, so two concurrent starts
// cannot both succeed.
func (r *StockTakeRepository) Start(ctx context.Context, id string) error {
	query := `
		UPDATE stock_take_sessions
		SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, SessionInProgress, SessionPending)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return r.transitionFailure(ctx, id, "start", SessionPending)
	}

	return nil
}

// Cancel transitions a session from PENDING or IN_PROGRESS to CANCELLED.
// Cancellation never touches the ledger.
func (r *StockTakeRepository) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE stock_take_sessions
		SET status = $2, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`

	result, err := r.db.ExecContext(ctx, query, id, SessionCancelled, SessionPending, SessionInProgress)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return r.transitionFailure(ctx, id, "cancel", SessionPending, SessionInProgress)
	}

	return nil
}

// transitionFailure distinguishes a missing session from an illegal
// state-machine transition after a compare-and-set matched no rows.
func (r *StockTakeRepository) transitionFailure(ctx context.Context, id, action string, allowed ...SessionStatus) error {
	var current SessionStatus
	err := r.db.GetContext(ctx, &current,
		`SELECT status FROM stock_take_sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return errors.NotFound("stock take session")
	}
	if err != nil {
		return err
	}

	return errors.InvalidState(
		"cannot " + action + " a session in status " + string(current),
	)
}

// UpsertItems adds or updates counted items for an IN_PROGRESS session in a
// single transaction. A first submission for a variant snapshots the
// variant's live stock and unit price; a re-submission updates only the
// counted quantity and notes, keyed on (session_id, variant_id), so no
// duplicate rows ever appear.
func (r *StockTakeRepository) UpsertItems(ctx context.Context, sessionID string, inputs []StockTakeItemInput) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var status SessionStatus
		err := tx.GetContext(ctx, &status,
			`SELECT status FROM stock_take_sessions WHERE id = $1 FOR UPDATE`, sessionID)
		if err == sql.ErrNoRows {
			return errors.NotFound("stock take session")
		}
		if err != nil {
			return err
		}
		if status != SessionInProgress {
			return errors.InvalidState("cannot add items to a session in status " + string(status))
		}

		for _, in := range inputs {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO stock_take_items (
					id, session_id, variant_id, system_quantity, counted_quantity, unit_price, notes
				)
				SELECT $1, $2, v.id, v.stock_quantity, $4, v.unit_price, $5
				FROM variants v WHERE v.id = $3
				ON CONFLICT (session_id, variant_id) DO UPDATE
				SET counted_quantity = EXCLUDED.counted_quantity,
				    notes = EXCLUDED.notes,
				    updated_at = NOW()
			`,
				uuid.New().String(), sessionID, in.VariantID, in.CountedQuantity, in.Notes,
			)
			if err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}

			affected, _ := result.RowsAffected()
			if affected == 0 {
				return errors.NotFound("variant")
			}
		}

		return nil
	})
}

// CompletionFunc derives the reconciliation report and any corrective
// movements from a session's items. It runs inside the completing
// transaction and must be safe to re-run.
type CompletionFunc func(items []*StockTakeItem) (json.RawMessage, []MovementInput, error)

// Complete transitions a session from IN_PROGRESS to COMPLETED. The session
// row is locked before the items are read, so the report and corrections
// come from exactly the counts the completion commits against: a concurrent
// re-count either lands before the lock and is included, or queues behind it
// and fails its own IN_PROGRESS guard. Either the session completes with
// every correction on the ledger, or nothing changes.
func (r *StockTakeRepository) Complete(ctx context.Context, id, completedBy string, autoAdjust bool, build CompletionFunc) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		var status SessionStatus
		err := tx.GetContext(ctx, &status,
			`SELECT status FROM stock_take_sessions WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return errors.NotFound("stock take session")
		}
		if err != nil {
			return err
		}
		if status != SessionInProgress {
			return errors.InvalidState("cannot complete a session in status " + string(status))
		}

		items, err := r.listItems(ctx, tx, id)
		if err != nil {
			return err
		}

		report, corrections, err := build(items)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE stock_take_sessions
			SET status = $2, completed_at = NOW(), completed_by = $3,
			    auto_adjusted = $4, report = $5, updated_at = NOW()
			WHERE id = $1
		`, id, SessionCompleted, completedBy, autoAdjust, report); err != nil {
			return err
		}

		if len(corrections) > 0 {
			if _, err := r.ledger.ApplyTx(ctx, tx, corrections); err != nil {
				return err
			}
		}

		return nil
	})
}
