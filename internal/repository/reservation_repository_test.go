package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-equipment-reservation/internal/model"
)

func setupMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMySQLStore(sqlx.NewDb(db, "mysql")), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	t9  = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	t11 = time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
)

func reservationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "equipment_id", "start_time", "end_time", "status", "purpose", "notes", "created_at", "updated_at"})
}

func TestMySQLStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	called := false
	err := store.WithTx(context.Background(), func(tx Tx) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_WithTx_RollsBackOnError(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	want := model.Errorf(model.KindConflict, "overlap")
	err := store.WithTx(context.Background(), func(tx Tx) error { return want })

	assert.Equal(t, want, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_DeadlockBecomesConflict(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT IGNORE INTO equipment_locks")).
		WithArgs("e1").
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx Tx) error {
		return tx.LockEquipment(context.Background(), "e1")
	})

	assert.True(t, errors.Is(err, model.ErrConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_LockThenCheckOverlap(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT IGNORE INTO equipment_locks (equipment_id) VALUES (?)")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT equipment_id FROM equipment_locks WHERE equipment_id = ? FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id"}).AddRow("e1"))
	mock.ExpectQuery(q("SELECT EXISTS")).
		WithArgs("e1", "pending", "approved", sqlmock.AnyArg(), sqlmock.AnyArg(), "r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	var overlap bool
	err := store.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.LockEquipment(context.Background(), "e1"); err != nil {
			return err
		}
		var err error
		overlap, err = tx.HasOverlap(context.Background(), "e1", t9, t11, "r1")
		return err
	})

	require.NoError(t, err)
	assert.True(t, overlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_InsertWritesAllRecords(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO approvals")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO usage_records")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	agg := &model.Aggregate{
		Reservation: model.Reservation{ID: "r1", UserID: "u1", EquipmentID: "e1", StartTime: t9, EndTime: t11, Status: model.StatusPending, Purpose: "scan"},
		Approval:    model.NewApproval("a1", "r1", "u1", t9),
		Usage:       model.NewUsageRecord("g1", "r1"),
	}
	err := store.WithTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), agg)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_InsertFailureRollsBack(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO approvals")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	agg := &model.Aggregate{
		Reservation: model.Reservation{ID: "r1", UserID: "u1", EquipmentID: "e1", StartTime: t9, EndTime: t11, Status: model.StatusPending, Purpose: "scan"},
		Approval:    model.NewApproval("a1", "r1", "u1", t9),
		Usage:       model.NewUsageRecord("g1", "r1"),
	}
	err := store.WithTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), agg)
	})

	assert.ErrorContains(t, err, "insert approval")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_LoadForUpdate(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT equipment_id FROM reservations WHERE id = ?")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id"}).AddRow("e1"))
	mock.ExpectExec(q("INSERT IGNORE INTO equipment_locks")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM equipment_locks WHERE equipment_id = ? FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id"}).AddRow("e1"))
	mock.ExpectQuery(q("FROM reservations WHERE id = ? FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(reservationRows().AddRow("r1", "u1", "e1", t9, t11, "approved", "scan", "", t9, t9))
	mock.ExpectQuery(q("FROM approvals WHERE reservation_id = ? FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "status", "approver_id", "comments", "approval_date", "approval_history"}).
			AddRow("a1", "r1", "approved", "m1", "ok", t9, []byte(`[{"status":"pending","date":"2025-06-01T09:00:00Z"},{"status":"approved","approver_id":"m1","date":"2025-06-01T09:00:00Z","comments":"ok"}]`)))
	mock.ExpectQuery(q("FROM usage_records WHERE reservation_id = ? FOR UPDATE")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "status", "actual_start_time", "actual_end_time", "data_volume", "telemetry", "notes"}).
			AddRow("g1", "r1", "not_started", nil, nil, int64(0), []byte(`{"temp":21.5}`), nil))
	mock.ExpectCommit()

	var agg *model.Aggregate
	err := store.WithTx(context.Background(), func(tx Tx) error {
		var err error
		agg, err = tx.LoadForUpdate(context.Background(), "r1")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, agg.Reservation.Status)
	require.NotNil(t, agg.Approval)
	assert.Len(t, agg.Approval.History, 2)
	assert.Equal(t, "m1", agg.Approval.ApproverID)
	require.NotNil(t, agg.Approval.ApprovalDate)
	require.NotNil(t, agg.Usage)
	assert.Equal(t, model.UsageNotStarted, agg.Usage.Status)
	assert.Nil(t, agg.Usage.ActualStartTime)
	assert.Equal(t, 21.5, agg.Usage.Telemetry["temp"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_LoadForUpdateMissing(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT equipment_id FROM reservations WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id"}))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.LoadForUpdate(context.Background(), "nope")
		return err
	})

	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_GetMissingApprovalLeavesNil(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WithArgs("r1").
		WillReturnRows(reservationRows().AddRow("r1", "u1", "e1", t9, t11, "pending", "scan", "", t9, t9))
	mock.ExpectQuery(q("FROM approvals WHERE reservation_id = ?")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q("FROM usage_records WHERE reservation_id = ?")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	agg, err := store.Get(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, "r1", agg.Reservation.ID)
	assert.Nil(t, agg.Approval)
	assert.Nil(t, agg.Usage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_List(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(q("SELECT COUNT(*) FROM reservations WHERE user_id = ? AND status = ?")).
		WithArgs("u1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(11)))
	mock.ExpectQuery(q("FROM reservations WHERE user_id = ? AND status = ? ORDER BY start_time ASC, id ASC LIMIT ? OFFSET ?")).
		WithArgs("u1", "pending", 10, 10).
		WillReturnRows(reservationRows().AddRow("r11", "u1", "e1", t9, t11, "pending", "scan", "", t9, t9))

	page, err := store.List(context.Background(), model.Filter{UserID: "u1", Status: model.StatusPending, Page: 2, Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r11", page.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_ListMissedUsage(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(q("JOIN usage_records u ON u.reservation_id = r.id")).
		WithArgs("approved", "not_started", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1").AddRow("r2"))

	ids, err := store.ListMissedUsage(context.Background(), t11)

	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.True(t, errors.Is(classify(&mysql.MySQLError{Number: 1205}), model.ErrConflict))
	assert.True(t, errors.Is(classify(&mysql.MySQLError{Number: 1062}), model.ErrConflict))
	plain := errors.New("boom")
	assert.Equal(t, plain, classify(plain))
	assert.Nil(t, classify(nil))
}
