package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
)

// IsRetryable reports whether err is a transient PostgreSQL failure that a
// fresh transaction attempt may resolve (serialization failure or deadlock).
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "stock_quantity_non_negative"):
		return errors.InsufficientStock("stock cannot go below zero")

	case strings.Contains(constraint, "threshold_positive"):
		return errors.Validation(map[string]string{
			"threshold": "must be at least 1",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: ADDITION, ADJUSTMENT, SALE, RETURN, DAMAGE, LOSS, TRANSFER, CORRECTION",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: PENDING, IN_PROGRESS, COMPLETED, CANCELLED",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "stock_take_items_session_variant"):
		return "this variant is already counted in the session"
	case strings.Contains(constraint, "stock_alerts_one_active"):
		return "an active alert already exists for this variant"
	case strings.Contains(constraint, "sku"):
		return "a variant with this SKU already exists"
	default:
		return "a record with these values already exists"
	}
}
