package service

import (
	"context"

	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
)

// AlertService implements low-stock threshold alerting. Thresholds are
// configured per variant; crossing at-or-below a threshold on a ledger
// mutation activates an alert. Rising stock never auto-resolves an alert;
// resolution is an explicit administrative action.
type AlertService struct {
	alerts    AlertStore
	variants  VariantStore
	publisher EventPublisher
	logger    *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(alerts AlertStore, variants VariantStore, publisher EventPublisher, log *logger.Logger) *AlertService {
	return &AlertService{
		alerts:    alerts,
		variants:  variants,
		publisher: publisher,
		logger:    log,
	}
}

// SetAlert upserts the threshold configuration for a variant. Current
// stock is not evaluated here; the next ledger mutation picks the new
// threshold up.
func (s *AlertService) SetAlert(ctx context.Context, variantID string, threshold int) (*repository.AlertConfig, error) {
	if threshold < 1 {
		return nil, errors.Validation(map[string]string{
			"threshold": "must be at least 1",
		})
	}

	if _, err := s.variants.GetByID(ctx, variantID); err != nil {
		return nil, err
	}

	return s.alerts.UpsertConfig(ctx, variantID, threshold)
}

// DisableAlert removes the threshold configuration entirely. The variant
// is no longer evaluated; existing alert history is retained.
func (s *AlertService) DisableAlert(ctx context.Context, variantID string) error {
	return s.alerts.DeleteConfig(ctx, variantID)
}

// ResolveAlert acknowledges the active alert for a variant without
// removing its threshold configuration. Resolving a variant with no
// active alert is a no-op, so repeated resolution is idempotent.
func (s *AlertService) ResolveAlert(ctx context.Context, variantID string) error {
	alert, err := s.alerts.GetActiveAlert(ctx, variantID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resolvedBy := actorID(ctx)
	resolved, err := s.alerts.ResolveActive(ctx, variantID, resolvedBy)
	if err != nil {
		return err
	}
	if !resolved {
		// Lost a race with another resolver; outcome is the same.
		return nil
	}

	if err := s.publisher.Publish(ctx, messaging.EventAlertResolved, messaging.AlertResolvedEvent{
		AlertID:    alert.ID,
		VariantID:  variantID,
		ResolvedBy: resolvedBy,
	}); err != nil {
		s.logger.Error().Err(err).
			Str("alert_id", alert.ID).
			Msg("failed to publish alert resolved event")
	}

	return nil
}

// Evaluate checks a variant's new stock level against its configured
// threshold after a ledger mutation. It activates an alert on an
// at-or-below crossing when none is active, and deliberately does nothing
// when stock rises back above the threshold.
func (s *AlertService) Evaluate(ctx context.Context, variantID string, newStock int) {
	cfg, err := s.alerts.GetConfig(ctx, variantID)
	if errors.Is(err, errors.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("variant_id", variantID).
			Msg("failed to load alert configuration")
		return
	}

	if newStock > cfg.Threshold {
		return
	}

	if _, err := s.alerts.GetActiveAlert(ctx, variantID); err == nil {
		// Already alerted; one active alert per variant.
		return
	} else if !errors.Is(err, errors.ErrNotFound) {
		s.logger.Error().Err(err).
			Str("variant_id", variantID).
			Msg("failed to check active alert")
		return
	}

	alert, err := s.alerts.CreateAlert(ctx, variantID, cfg.Threshold, newStock)
	if err != nil {
		// A concurrent evaluation may have won the partial unique index.
		if errors.Is(err, errors.ErrConflict) {
			return
		}
		s.logger.Error().Err(err).
			Str("variant_id", variantID).
			Msg("failed to create alert")
		return
	}

	s.logger.Info().
		Str("variant_id", variantID).
		Int("threshold", cfg.Threshold).
		Int("stock", newStock).
		Msg("low stock alert triggered")

	sku := ""
	if v, err := s.variants.GetByID(ctx, variantID); err == nil {
		sku = v.SKU
	}

	if err := s.publisher.Publish(ctx, messaging.EventAlertTriggered, messaging.AlertTriggeredEvent{
		AlertID:      alert.ID,
		VariantID:    variantID,
		SKU:          sku,
		Threshold:    cfg.Threshold,
		CurrentStock: newStock,
	}); err != nil {
		s.logger.Error().Err(err).
			Str("alert_id", alert.ID).
			Msg("failed to publish alert triggered event")
	}
}

// ActiveAlerts lists all currently active alerts
func (s *AlertService) ActiveAlerts(ctx context.Context) ([]*repository.Alert, error) {
	return s.alerts.ListActive(ctx)
}

// AlertHistory lists alert instances with optional filters
func (s *AlertService) AlertHistory(ctx context.Context, filter repository.AlertHistoryFilter, page, perPage int) ([]*repository.Alert, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.alerts.History(ctx, filter, page, perPage)
}

// AlertStats returns aggregate alerting counters
func (s *AlertService) AlertStats(ctx context.Context) (*repository.AlertStats, error) {
	return s.alerts.Stats(ctx)
}
