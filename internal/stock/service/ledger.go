package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
	"github.com/sokoflow/sokoflow-backend/pkg/actor"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
)

// MovementMeta carries the optional context of a ledger mutation. CostPrice
// is only meaningful for additions.
type MovementMeta struct {
	Reason    *string
	Notes     *string
	Location  *string
	CostPrice *decimal.Decimal
}

// BulkUpdateEntry is one entry in a bulk stock update. Quantity is signed
// for movement types that carry their own sign (ADJUSTMENT, TRANSFER,
// CORRECTION) and treated as a magnitude for types with a fixed direction.
type BulkUpdateEntry struct {
	VariantID string
	Quantity  int
	Type      *repository.MovementType
	Reason    *string
	Notes     *string
}

// LedgerService implements stock ledger operations. Every mutation appends
// movements and updates stock atomically, then evaluates alert thresholds
// and publishes events for the committed movements.
type LedgerService struct {
	ledger    LedgerStore
	evaluator StockEvaluator
	publisher EventPublisher
	logger    *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(ledger LedgerStore, evaluator StockEvaluator, publisher EventPublisher, log *logger.Logger) *LedgerService {
	return &LedgerService{
		ledger:    ledger,
		evaluator: evaluator,
		publisher: publisher,
		logger:    log,
	}
}

// AddStock appends an ADDITION movement and increments stock by quantity
func (s *LedgerService) AddStock(ctx context.Context, variantID string, quantity int, meta MovementMeta) (*repository.Movement, error) {
	if quantity < 1 {
		return nil, errors.Validation(map[string]string{
			"quantity": "must be at least 1",
		})
	}

	return s.applySingle(ctx, repository.MovementInput{
		VariantID:     variantID,
		Type:          repository.MovementAddition,
		QuantityDelta: quantity,
		Reason:        meta.Reason,
		Notes:         meta.Notes,
		Location:      meta.Location,
		CostPrice:     meta.CostPrice,
		ActorID:       actorID(ctx),
	})
}

// AdjustStock appends an ADJUSTMENT movement and changes stock by delta,
// which may be positive or negative. An adjustment that would drive stock
// below zero is rejected.
func (s *LedgerService) AdjustStock(ctx context.Context, variantID string, delta int, meta MovementMeta) (*repository.Movement, error) {
	if delta == 0 {
		return nil, errors.Validation(map[string]string{
			"quantity": "must not equal 0",
		})
	}

	return s.applySingle(ctx, repository.MovementInput{
		VariantID:     variantID,
		Type:          repository.MovementAdjustment,
		QuantityDelta: delta,
		Reason:        meta.Reason,
		Notes:         meta.Notes,
		Location:      meta.Location,
		ActorID:       actorID(ctx),
	})
}

// RecordDamage appends a DAMAGE movement and decrements stock by quantity
func (s *LedgerService) RecordDamage(ctx context.Context, variantID string, quantity int, meta MovementMeta) (*repository.Movement, error) {
	if quantity < 1 {
		return nil, errors.Validation(map[string]string{
			"quantity": "must be at least 1",
		})
	}

	return s.applySingle(ctx, repository.MovementInput{
		VariantID:     variantID,
		Type:          repository.MovementDamage,
		QuantityDelta: -quantity,
		Reason:        meta.Reason,
		Notes:         meta.Notes,
		Location:      meta.Location,
		ActorID:       actorID(ctx),
	})
}

// BulkUpdate applies a batch of updates as one atomic unit: either every
// entry commits with its movement, or none do.
func (s *LedgerService) BulkUpdate(ctx context.Context, entries []BulkUpdateEntry) ([]*repository.Movement, error) {
	if len(entries) == 0 {
		return nil, errors.Validation(map[string]string{
			"updates": "must contain at least 1 entry",
		})
	}

	inputs := make([]repository.MovementInput, 0, len(entries))
	for i, e := range entries {
		if e.Quantity == 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("updates[%d].quantity", i): "must not equal 0",
			})
		}

		movementType := repository.MovementAdjustment
		if e.Type != nil {
			if !e.Type.Valid() {
				return nil, errors.Validation(map[string]string{
					fmt.Sprintf("updates[%d].movement_type", i): "unknown movement type " + string(*e.Type),
				})
			}
			movementType = *e.Type
		}

		delta := e.Quantity
		if dir := movementType.Direction(); dir != 0 {
			delta = dir * abs(e.Quantity)
		}

		inputs = append(inputs, repository.MovementInput{
			VariantID:     e.VariantID,
			Type:          movementType,
			QuantityDelta: delta,
			Reason:        e.Reason,
			Notes:         e.Notes,
			ActorID:       actorID(ctx),
		})
	}

	movements, err := s.ledger.Apply(ctx, inputs)
	if err != nil {
		return nil, err
	}

	for _, m := range movements {
		s.afterCommit(ctx, m)
	}

	return movements, nil
}

// GetMovements returns a variant's movement history, newest first
func (s *LedgerService) GetMovements(ctx context.Context, variantID string, filter repository.MovementFilter, page, perPage int) ([]*repository.Movement, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.ledger.ListMovements(ctx, variantID, filter, page, perPage)
}

func (s *LedgerService) applySingle(ctx context.Context, input repository.MovementInput) (*repository.Movement, error) {
	movements, err := s.ledger.Apply(ctx, []repository.MovementInput{input})
	if err != nil {
		return nil, err
	}

	m := movements[0]
	s.afterCommit(ctx, m)
	return m, nil
}

// afterCommit runs the post-commit side effects of a movement: threshold
// evaluation and event publication. The movement is already durable, so
// failures here are logged rather than surfaced.
func (s *LedgerService) afterCommit(ctx context.Context, m *repository.Movement) {
	s.evaluator.Evaluate(ctx, m.VariantID, m.BalanceAfter)

	err := s.publisher.Publish(ctx, messaging.EventMovementRecorded, messaging.MovementRecordedEvent{
		MovementID:   m.ID,
		VariantID:    m.VariantID,
		MovementType: string(m.Type),
		Quantity:     m.QuantityDelta,
		BalanceAfter: m.BalanceAfter,
		PerformedBy:  m.ActorID,
		Reason:       strOrEmpty(m.Reason),
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("movement_id", m.ID).
			Str("variant_id", m.VariantID).
			Msg("failed to publish movement event")
	}
}

func actorID(ctx context.Context) string {
	if a := actor.FromContext(ctx); a != nil {
		return a.ID
	}
	return actor.SystemActor().ID
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
