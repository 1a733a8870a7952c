package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType identifies the business reason behind a stock movement.
// The set is closed: every type maps to a fixed sign behavior via Direction.
type MovementType string

const (
	MovementAddition   MovementType = "ADDITION"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementDamage     MovementType = "DAMAGE"
	MovementLoss       MovementType = "LOSS"
	MovementTransfer   MovementType = "TRANSFER"
	MovementCorrection MovementType = "CORRECTION"
)

// Direction returns the sign this movement type imposes on quantities:
// +1 for types that always increase stock, -1 for types that always
// decrease it, and 0 for types whose delta carries its own sign.
func (t MovementType) Direction() int {
	switch t {
	case MovementAddition, MovementReturn:
		return 1
	case MovementSale, MovementDamage, MovementLoss:
		return -1
	case MovementAdjustment, MovementTransfer, MovementCorrection:
		return 0
	default:
		return 0
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementAddition, MovementAdjustment, MovementSale, MovementReturn,
		MovementDamage, MovementLoss, MovementTransfer, MovementCorrection:
		return true
	}
	return false
}

// Movement is one immutable entry in the stock ledger. The signed sum of
// QuantityDelta over a variant's movements, in creation order, equals the
// variant's current stock; BalanceAfter records that running sum at append
// time.
type Movement struct {
	ID            string       `db:"id" json:"id"`
	VariantID     string       `db:"variant_id" json:"variant_id"`
	Type          MovementType `db:"movement_type" json:"movement_type"`
	QuantityDelta int          `db:"quantity_delta" json:"quantity_delta"`
	BalanceAfter  int          `db:"balance_after" json:"balance_after"`
	Reason        *string      `db:"reason" json:"reason,omitempty"`
	Notes         *string      `db:"notes" json:"notes,omitempty"`
	ActorID       string       `db:"actor_id" json:"actor_id"`
	Location      *string      `db:"location" json:"location,omitempty"`
	// CostPrice is the per-unit acquisition cost of an ADDITION, when known.
	CostPrice *decimal.Decimal `db:"cost_price" json:"cost_price,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// MovementInput describes one pending ledger entry. QuantityDelta is the
// signed change to apply; callers normalize direction before building it.
type MovementInput struct {
	VariantID     string
	Type          MovementType
	QuantityDelta int
	Reason        *string
	Notes         *string
	ActorID       string
	Location      *string
	CostPrice     *decimal.Decimal
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	Type      *MovementType
	StartDate *time.Time
	EndDate   *time.Time
}
