package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
)

const correctionReason = "stock-take correction"

// StockTakeItemCount is one submitted count for a variant.
type StockTakeItemCount struct {
	VariantID       string
	CountedQuantity int
	Notes           *string
}

// StockTakeService implements the stock take audit lifecycle: snapshot
// counts against live stock, reconcile variances on completion, and
// optionally correct drift through the ledger.
type StockTakeService struct {
	sessions  StockTakeStore
	publisher EventPublisher
	logger    *logger.Logger
}

// NewStockTakeService creates a new stock take service
func NewStockTakeService(sessions StockTakeStore, publisher EventPublisher, log *logger.Logger) *StockTakeService {
	return &StockTakeService{
		sessions:  sessions,
		publisher: publisher,
		logger:    log,
	}
}

// Create creates a new session in PENDING. An optional scheduled date is
// informational; it does not gate when the session may be started.
func (s *StockTakeService) Create(ctx context.Context, title string, description, notes *string, scheduledFor *time.Time) (*repository.StockTakeSession, error) {
	if title == "" {
		return nil, errors.Validation(map[string]string{
			"title": "this field is required",
		})
	}

	session := &repository.StockTakeSession{
		Title:        title,
		Description:  description,
		Notes:        notes,
		ScheduledFor: scheduledFor,
		CreatedBy:    actorID(ctx),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Get returns a session with its items
func (s *StockTakeService) Get(ctx context.Context, id string) (*repository.StockTakeSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// List lists sessions, most recent first
func (s *StockTakeService) List(ctx context.Context, status *repository.SessionStatus, page, perPage int) ([]*repository.StockTakeSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.sessions.List(ctx, status, page, perPage)
}

// Start transitions a session from PENDING to IN_PROGRESS, opening it for
// counting. Any other starting state fails with an invalid state error.
func (s *StockTakeService) Start(ctx context.Context, id string) (*repository.StockTakeSession, error) {
	if err := s.sessions.Start(ctx, id); err != nil {
		return nil, err
	}

	return s.sessions.GetByID(ctx, id)
}

// AddItems records counted quantities for an IN_PROGRESS session. A first
// count for a variant snapshots its live stock and price; a repeat count
// for the same variant overwrites the previous count in place.
func (s *StockTakeService) AddItems(ctx context.Context, sessionID string, counts []StockTakeItemCount) (*repository.StockTakeSession, error) {
	if len(counts) == 0 {
		return nil, errors.Validation(map[string]string{
			"items": "must contain at least 1 entry",
		})
	}

	inputs := make([]repository.StockTakeItemInput, 0, len(counts))
	for i, c := range counts {
		if c.CountedQuantity < 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("items[%d].counted_quantity", i): "must be at least 0",
			})
		}
		inputs = append(inputs, repository.StockTakeItemInput{
			VariantID:       c.VariantID,
			CountedQuantity: c.CountedQuantity,
			Notes:           c.Notes,
		})
	}

	if err := s.sessions.UpsertItems(ctx, sessionID, inputs); err != nil {
		return nil, err
	}

	return s.sessions.GetByID(ctx, sessionID)
}

// Complete transitions a session from IN_PROGRESS to COMPLETED and stores
// the reconciliation report. With autoAdjust, every variance becomes a
// CORRECTION movement applied in the same transaction as the status flip,
// bringing each variant's live stock to its counted quantity.
func (s *StockTakeService) Complete(ctx context.Context, id string, autoAdjust bool) (*repository.StockTakeSession, *ReconciliationReport, error) {
	completedBy := actorID(ctx)

	// The store passes the items back from inside the completing
	// transaction, after locking the session row, so the report and
	// corrections always reflect the counts being committed against.
	var report *ReconciliationReport
	var adjusted bool
	err := s.sessions.Complete(ctx, id, completedBy, autoAdjust,
		func(items []*repository.StockTakeItem) (json.RawMessage, []repository.MovementInput, error) {
			report = Reconcile(items)
			reportJSON, err := json.Marshal(report)
			if err != nil {
				return nil, nil, err
			}

			var corrections []repository.MovementInput
			if autoAdjust {
				reason := correctionReason
				for _, item := range items {
					delta := item.CountedQuantity - item.SystemQuantity
					if delta == 0 {
						continue
					}
					corrections = append(corrections, repository.MovementInput{
						VariantID:     item.VariantID,
						Type:          repository.MovementCorrection,
						QuantityDelta: delta,
						Reason:        &reason,
						ActorID:       completedBy,
					})
				}
			}

			adjusted = len(corrections) > 0
			return reportJSON, corrections, nil
		})
	if err != nil {
		return nil, nil, err
	}

	if err := s.publisher.Publish(ctx, messaging.EventStockTakeCompleted, messaging.StockTakeCompletedEvent{
		SessionID:         id,
		CompletedBy:       completedBy,
		ItemsCounted:      report.TotalItems,
		ItemsWithVariance: report.TotalItems - report.MatchedItems,
		NetVarianceValue:  report.NetDiscrepancy.String(),
		AdjustmentsMade:   adjusted,
	}); err != nil {
		s.logger.Error().Err(err).
			Str("session_id", id).
			Msg("failed to publish stock take completed event")
	}

	completed, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return completed, report, nil
}

// Cancel transitions a session from PENDING or IN_PROGRESS to CANCELLED.
// Counts already recorded are retained for audit but never reach the
// ledger.
func (s *StockTakeService) Cancel(ctx context.Context, id string) (*repository.StockTakeSession, error) {
	if err := s.sessions.Cancel(ctx, id); err != nil {
		return nil, err
	}

	return s.sessions.GetByID(ctx, id)
}

// Report returns the stored reconciliation report of a COMPLETED session.
func (s *StockTakeService) Report(ctx context.Context, id string) (*ReconciliationReport, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != repository.SessionCompleted {
		return nil, errors.InvalidState(
			"report is only available for a completed session, current status is " + string(session.Status))
	}

	var report ReconciliationReport
	if err := json.Unmarshal(session.Report, &report); err != nil {
		return nil, errors.Internal("stored reconciliation report is unreadable")
	}

	return &report, nil
}
