package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sokoflow/sokoflow-backend/pkg/database"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// AlertConfig is a per-variant low-stock threshold. Its presence is what
// makes a variant eligible for alert evaluation.
type AlertConfig struct {
	VariantID string    `db:"variant_id" json:"variant_id"`
	Threshold int       `db:"threshold" json:"threshold"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Alert is one triggered low-stock alert instance. At most one active
// alert exists per variant at a time; resolving it does not remove the
// threshold configuration, so a later crossing triggers a fresh instance.
type Alert struct {
	ID             string     `db:"id" json:"id"`
	VariantID      string     `db:"variant_id" json:"variant_id"`
	SKU            string     `db:"sku" json:"sku"`
	VariantName    string     `db:"variant_name" json:"variant_name"`
	Threshold      int        `db:"threshold" json:"threshold"`
	StockAtTrigger int        `db:"stock_at_trigger" json:"stock_at_trigger"`
	Active         bool       `db:"active" json:"active"`
	TriggeredAt    time.Time  `db:"triggered_at" json:"triggered_at"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     *string    `db:"resolved_by" json:"resolved_by,omitempty"`
}

// AlertStats summarizes alerting activity for reporting.
type AlertStats struct {
	TotalTriggered  int     `db:"total_triggered" json:"total_triggered"`
	ActiveCount     int     `db:"active_count" json:"active_count"`
	ResolvedCount   int     `db:"resolved_count" json:"resolved_count"`
	ConfiguredCount int     `db:"configured_count" json:"configured_count"`
	AvgResolveSecs  float64 `db:"avg_resolve_secs" json:"avg_resolve_secs"`
}

// AlertHistoryFilter narrows alert history queries.
type AlertHistoryFilter struct {
	Resolved  *bool
	StartDate *time.Time
	EndDate   *time.Time
}

// AlertRepository handles alert configuration and alert instance persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// UpsertConfig creates or updates the threshold configuration for a variant
func (r *AlertRepository) UpsertConfig(ctx context.Context, variantID string, threshold int) (*AlertConfig, error) {
	var cfg AlertConfig

	query := `
		INSERT INTO stock_alert_configs (variant_id, threshold)
		VALUES ($1, $2)
		ON CONFLICT (variant_id) DO UPDATE SET threshold = EXCLUDED.threshold, updated_at = NOW()
		RETURNING variant_id, threshold, created_at, updated_at
	`

	err := r.db.GetContext(ctx, &cfg, query, variantID, threshold)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return &cfg, nil
}

// GetConfig gets the threshold configuration for a variant
func (r *AlertRepository) GetConfig(ctx context.Context, variantID string) (*AlertConfig, error) {
	var cfg AlertConfig

	query := `
		SELECT variant_id, threshold, created_at, updated_at
		FROM stock_alert_configs WHERE variant_id = $1
	`

	err := r.db.GetContext(ctx, &cfg, query, variantID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("alert configuration")
	}
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DeleteConfig removes the threshold configuration for a variant. Alert
// history is untouched; the variant is simply no longer evaluated.
func (r *AlertRepository) DeleteConfig(ctx context.Context, variantID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM stock_alert_configs WHERE variant_id = $1`, variantID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert configuration")
	}

	return nil
}

// GetActiveAlert gets the currently active alert for a variant, if any
func (r *AlertRepository) GetActiveAlert(ctx context.Context, variantID string) (*Alert, error) {
	var alert Alert

	query := `
		SELECT a.id, a.variant_id, v.sku, v.name AS variant_name,
		       a.threshold, a.stock_at_trigger, a.active,
		       a.triggered_at, a.resolved_at, a.resolved_by
		FROM stock_alerts a
		JOIN variants v ON v.id = a.variant_id
		WHERE a.variant_id = $1 AND a.active = true
	`

	err := r.db.GetContext(ctx, &alert, query, variantID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("active alert")
	}
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

// CreateAlert activates a new alert instance for a variant. A partial
// unique index on (variant_id) WHERE active guarantees at most one active
// alert per variant even under concurrent evaluation.
func (r *AlertRepository) CreateAlert(ctx context.Context, variantID string, threshold, stockAtTrigger int) (*Alert, error) {
	alert := &Alert{
		ID:             uuid.New().String(),
		VariantID:      variantID,
		Threshold:      threshold,
		StockAtTrigger: stockAtTrigger,
		Active:         true,
	}

	query := `
		INSERT INTO stock_alerts (id, variant_id, threshold, stock_at_trigger, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING triggered_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		alert.ID, alert.VariantID, alert.Threshold, alert.StockAtTrigger,
	).Scan(&alert.TriggeredAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return alert, nil
}

// ResolveActive marks the active alert for a variant as resolved. Returns
// false when no active alert exists, which callers treat as a no-op so
// resolution stays idempotent.
func (r *AlertRepository) ResolveActive(ctx context.Context, variantID, resolvedBy string) (bool, error) {
	query := `
		UPDATE stock_alerts
		SET active = false, resolved_at = NOW(), resolved_by = $2
		WHERE variant_id = $1 AND active = true
	`

	result, err := r.db.ExecContext(ctx, query, variantID, resolvedBy)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ListActive lists all currently active alerts, most recent first
func (r *AlertRepository) ListActive(ctx context.Context) ([]*Alert, error) {
	query := `
		SELECT a.id, a.variant_id, v.sku, v.name AS variant_name,
		       a.threshold, a.stock_at_trigger, a.active,
		       a.triggered_at, a.resolved_at, a.resolved_by
		FROM stock_alerts a
		JOIN variants v ON v.id = a.variant_id
		WHERE a.active = true
		ORDER BY a.triggered_at DESC
	`

	var alerts []*Alert
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, err
	}

	return alerts, nil
}

// History lists alert instances with optional filters and pagination
func (r *AlertRepository) History(ctx context.Context, filter AlertHistoryFilter, page, perPage int) ([]*Alert, int64, error) {
	where := `WHERE 1=1`
	args := []interface{}{}

	if filter.Resolved != nil {
		args = append(args, !*filter.Resolved)
		where += fmt.Sprintf(` AND a.active = $%d`, len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += fmt.Sprintf(` AND a.triggered_at >= $%d`, len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += fmt.Sprintf(` AND a.triggered_at <= $%d`, len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_alerts a ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	args = append(args, perPage, offset)
	query := fmt.Sprintf(`
		SELECT a.id, a.variant_id, v.sku, v.name AS variant_name,
		       a.threshold, a.stock_at_trigger, a.active,
		       a.triggered_at, a.resolved_at, a.resolved_by
		FROM stock_alerts a
		JOIN variants v ON v.id = a.variant_id
		%s
		ORDER BY a.triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	var alerts []*Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// Stats returns aggregate alerting counters
func (r *AlertRepository) Stats(ctx context.Context) (*AlertStats, error) {
	var stats AlertStats

	query := `
		SELECT
			(SELECT COUNT(*) FROM stock_alerts) AS total_triggered,
			(SELECT COUNT(*) FROM stock_alerts WHERE active = true) AS active_count,
			(SELECT COUNT(*) FROM stock_alerts WHERE active = false) AS resolved_count,
			(SELECT COUNT(*) FROM stock_alert_configs) AS configured_count,
			(SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - triggered_at))), 0)
			 FROM stock_alerts WHERE active = false) AS avg_resolve_secs
	`

	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, err
	}

	return &stats, nil
}
