package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/testutil"
)

func TestStockTakeCreate_ForcesPendingStatus(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectQuery(`INSERT INTO stock_take_sessions`).
		WithArgs(testutil.AnyUUID{}, "quarterly count", nil, SessionPending, nil, "actor-1", nil).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))

	session := &StockTakeSession{
		Title:     "quarterly count",
		Status:    SessionCompleted, // must be overridden
		CreatedBy: "actor-1",
	}
	require.NoError(t, repo.Create(context.Background(), session))

	assert.Equal(t, SessionPending, session.Status)
	assert.NotEmpty(t, session.ID)
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeStart_CASMissReportsCurrentStatus(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectExec(`UPDATE stock_take_sessions`).
		WithArgs("s1", SessionInProgress, SessionPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("COMPLETED"))

	err := repo.Start(context.Background(), "s1")
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Contains(t, err.Error(), "COMPLETED")
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeStart_MissingSession(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectExec(`UPDATE stock_take_sessions`).
		WithArgs("missing", SessionInProgress, SessionPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("status"))

	err := repo.Start(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeUpsertItems_RejectsNonInProgressSession(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("PENDING"))
	mockDB.Mock.ExpectRollback()

	err := repo.UpsertItems(context.Background(), "s1", []StockTakeItemInput{
		{VariantID: "variant-1", CountedQuantity: 5},
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	mockDB.ExpectationsWereMet(t)
}

func expectSessionItems(mockDB *testutil.MockDB, sessionID string, rows *sqlmock.Rows) {
	mockDB.Mock.ExpectQuery(`FROM stock_take_items i`).
		WithArgs(sessionID).
		WillReturnRows(rows)
}

func itemRows() *sqlmock.Rows {
	return testutil.MockRows(
		"id", "session_id", "variant_id", "sku", "variant_name",
		"system_quantity", "counted_quantity", "unit_price", "notes",
		"created_at", "updated_at",
	)
}

func TestStockTakeComplete_AppliesCorrectionsInSameTransaction(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	report, err := json.Marshal(map[string]int{"total_items": 1})
	require.NoError(t, err)

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("IN_PROGRESS"))
	expectSessionItems(mockDB, "s1", itemRows().
		AddRow("i1", "s1", "variant-1", "SKU-1", "Widget", 50, 45, "10.00", nil, time.Now(), time.Now()))
	mockDB.Mock.ExpectExec(`UPDATE stock_take_sessions`).
		WithArgs("s1", SessionCompleted, "actor-1", true, report).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectQuery(`SELECT stock_quantity FROM variants WHERE id = \$1 FOR UPDATE`).
		WithArgs("variant-1").
		WillReturnRows(testutil.MockRows("stock_quantity").AddRow(50))
	mockDB.Mock.ExpectExec(`UPDATE variants SET stock_quantity = \$2`).
		WithArgs("variant-1", 45).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectQuery(`INSERT INTO stock_movements`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.Mock.ExpectCommit()

	err = repo.Complete(context.Background(), "s1", "actor-1", true,
		func(items []*StockTakeItem) (json.RawMessage, []MovementInput, error) {
			require.Len(t, items, 1)
			delta := items[0].CountedQuantity - items[0].SystemQuantity
			return report, []MovementInput{
				{VariantID: items[0].VariantID, Type: MovementCorrection, QuantityDelta: delta, ActorID: "actor-1"},
			}, nil
		})
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeComplete_ReadsItemsUnderSessionLock(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	// The counts the completion sees are the ones read after the session
	// row is locked, not whatever the caller last fetched.
	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("IN_PROGRESS"))
	expectSessionItems(mockDB, "s1", itemRows().
		AddRow("i1", "s1", "variant-1", "SKU-1", "Widget", 50, 47, "10.00", nil, time.Now(), time.Now()))
	mockDB.Mock.ExpectExec(`UPDATE stock_take_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectCommit()

	var seen int
	err := repo.Complete(context.Background(), "s1", "actor-1", false,
		func(items []*StockTakeItem) (json.RawMessage, []MovementInput, error) {
			require.Len(t, items, 1)
			seen = items[0].CountedQuantity
			return json.RawMessage(`{}`), nil, nil
		})
	require.NoError(t, err)

	assert.Equal(t, 47, seen)
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeComplete_RejectsNonInProgressSession(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("COMPLETED"))
	mockDB.Mock.ExpectRollback()

	err := repo.Complete(context.Background(), "s1", "actor-1", false,
		func(items []*StockTakeItem) (json.RawMessage, []MovementInput, error) {
			t.Fatal("a session that is not in progress must not be reconciled")
			return nil, nil, nil
		})
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Contains(t, err.Error(), "COMPLETED")
	mockDB.ExpectationsWereMet(t)
}

func TestStockTakeComplete_CorrectionFailureRollsBackTransition(t *testing.T) {
	db, mockDB := newTestDB(t)
	defer mockDB.Close()

	repo := NewStockTakeRepository(db, NewLedgerRepository(db))

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT status FROM stock_take_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(testutil.MockRows("status").AddRow("IN_PROGRESS"))
	expectSessionItems(mockDB, "s1", itemRows().
		AddRow("i1", "s1", "variant-1", "SKU-1", "Widget", 7, 2, "10.00", nil, time.Now(), time.Now()))
	mockDB.Mock.ExpectExec(`UPDATE stock_take_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectQuery(`SELECT stock_quantity FROM variants WHERE id = \$1 FOR UPDATE`).
		WithArgs("variant-1").
		WillReturnRows(testutil.MockRows("stock_quantity").AddRow(2))
	mockDB.Mock.ExpectRollback()

	err := repo.Complete(context.Background(), "s1", "actor-1", true,
		func(items []*StockTakeItem) (json.RawMessage, []MovementInput, error) {
			return json.RawMessage(`{}`), []MovementInput{
				{VariantID: "variant-1", Type: MovementCorrection, QuantityDelta: -5, ActorID: "actor-1"},
			}, nil
		})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	mockDB.ExpectationsWereMet(t)
}
