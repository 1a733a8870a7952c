package service

import (
	"github.com/shopspring/decimal"
	"github.com/sokoflow/sokoflow-backend/internal/stock/repository"
)

// ItemVariance is the reconciliation result for a single counted item.
// Quantities and the unit price are the values frozen into the item when
// it was added to the session.
type ItemVariance struct {
	VariantID       string          `json:"variant_id"`
	SKU             string          `json:"sku"`
	SystemQuantity  int             `json:"system_quantity"`
	CountedQuantity int             `json:"counted_quantity"`
	Variance        int             `json:"variance"`
	VarianceValue   decimal.Decimal `json:"variance_value"`
}

// ReconciliationReport aggregates counted-vs-system variances over a
// session's items. All monetary values use decimal arithmetic so large
// sums carry no floating-point drift.
type ReconciliationReport struct {
	TotalItems        int             `json:"total_items"`
	MatchedItems      int             `json:"matched_items"`
	AccuracyRate      decimal.Decimal `json:"accuracy_rate"`
	ShrinkageValue    decimal.Decimal `json:"shrinkage_value"`
	SurplusValue      decimal.Decimal `json:"surplus_value"`
	TotalSystemValue  decimal.Decimal `json:"total_system_value"`
	TotalCountedValue decimal.Decimal `json:"total_counted_value"`
	NetDiscrepancy    decimal.Decimal `json:"net_discrepancy"`
	Items             []ItemVariance  `json:"items"`
}

var hundred = decimal.NewFromInt(100)

// Reconcile computes the variance report for a set of counted items. It is
// a pure function: order-independent, no side effects, prices taken from
// the items themselves.
func Reconcile(items []*repository.StockTakeItem) *ReconciliationReport {
	report := &ReconciliationReport{
		TotalItems: len(items),
		Items:      make([]ItemVariance, 0, len(items)),
	}

	for _, item := range items {
		variance := item.CountedQuantity - item.SystemQuantity
		varianceValue := item.UnitPrice.Mul(decimal.NewFromInt(int64(variance)))

		switch {
		case variance == 0:
			report.MatchedItems++
		case variance < 0:
			report.ShrinkageValue = report.ShrinkageValue.Add(varianceValue.Abs())
		default:
			report.SurplusValue = report.SurplusValue.Add(varianceValue)
		}

		report.TotalSystemValue = report.TotalSystemValue.Add(
			item.UnitPrice.Mul(decimal.NewFromInt(int64(item.SystemQuantity))))
		report.TotalCountedValue = report.TotalCountedValue.Add(
			item.UnitPrice.Mul(decimal.NewFromInt(int64(item.CountedQuantity))))

		report.Items = append(report.Items, ItemVariance{
			VariantID:       item.VariantID,
			SKU:             item.SKU,
			SystemQuantity:  item.SystemQuantity,
			CountedQuantity: item.CountedQuantity,
			Variance:        variance,
			VarianceValue:   varianceValue,
		})
	}

	report.NetDiscrepancy = report.TotalCountedValue.Sub(report.TotalSystemValue)

	// An empty session is vacuously accurate.
	if report.TotalItems == 0 {
		report.AccuracyRate = hundred
	} else {
		report.AccuracyRate = decimal.NewFromInt(int64(report.MatchedItems)).
			Div(decimal.NewFromInt(int64(report.TotalItems))).
			Mul(hundred).
			Round(2)
	}

	return report
}
