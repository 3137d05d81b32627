package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// MySQLStore is the durable Store.  Aggregates span three tables:
// reservations, approvals and usage_records.  The latter two reference
// reservations with ON DELETE CASCADE and a unique reservation_id, which
// keeps the one-to-one relationship enforced by the schema.  All
// timestamps are stored in UTC (the DSN sets loc=UTC).
type MySQLStore struct {
    db *sqlx.DB
}

// NewMySQLStore returns a MySQLStore bound to the given database.
func NewMySQLStore(db *sqlx.DB) *MySQLStore { return &MySQLStore{db: db} }

// approvalRecord mirrors the approvals table.  approval_history is a JSON
// array of model.ApprovalEntry values.
type approvalRecord struct {
    ID            string         `db:"id"`
    ReservationID string         `db:"reservation_id"`
    Status        string         `db:"status"`
    ApproverID    sql.NullString `db:"approver_id"`
    Comments      sql.NullString `db:"comments"`
    ApprovalDate  sql.NullTime   `db:"approval_date"`
    History       []byte         `db:"approval_history"`
}

// usageRecord mirrors the usage_records table.  telemetry is a nullable
// JSON object.
type usageRecord struct {
    ID              string         `db:"id"`
    ReservationID   string         `db:"reservation_id"`
    Status          string         `db:"status"`
    ActualStartTime sql.NullTime   `db:"actual_start_time"`
    ActualEndTime   sql.NullTime   `db:"actual_end_time"`
    DataVolume      int64          `db:"data_volume"`
    Telemetry       []byte         `db:"telemetry"`
    Notes           sql.NullString `db:"notes"`
}

const reservationColumns = `id, user_id, equipment_id, start_time, end_time, status, purpose, notes, created_at, updated_at`

// WithTx runs fn in a READ COMMITTED transaction.  Isolation for the
// overlap check comes from the equipment lock rather than from the
// isolation level, so the weaker level avoids gap-lock deadlocks between
// writers on unrelated equipment.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
    tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil {
        return fmt.Errorf("begin transaction: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if err := fn(&mysqlTx{tx: tx}); err != nil {
        return classify(err)
    }
    if err := tx.Commit(); err != nil {
        return classify(fmt.Errorf("commit transaction: %w", err))
    }
    committed = true
    return nil
}

// Get loads an aggregate without taking any locks.
func (s *MySQLStore) Get(ctx context.Context, id string) (*model.Aggregate, error) {
    agg, err := loadAggregate(ctx, s.db, id, false)
    if err != nil {
        return nil, classify(err)
    }
    return agg, nil
}

// List returns one page of reservations ordered by start time.  The date
// range selects reservations whose window intersects [StartDate, EndDate).
func (s *MySQLStore) List(ctx context.Context, f model.Filter) (model.Page, error) {
    where, args := filterClause(f)

    var total int
    if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reservations`+where, args...); err != nil {
        return model.Page{}, fmt.Errorf("count reservations: %w", err)
    }

    q := `SELECT ` + reservationColumns + ` FROM reservations` + where +
        ` ORDER BY start_time ASC, id ASC LIMIT ? OFFSET ?`
    var items []model.Reservation
    if err := s.db.SelectContext(ctx, &items, q, append(args, f.Limit, f.Offset())...); err != nil {
        return model.Page{}, fmt.Errorf("list reservations: %w", err)
    }
    return model.NewPage(items, total, f), nil
}

// ListMissedUsage returns approved reservations whose scheduled end is
// before now and whose usage record is still not_started.
func (s *MySQLStore) ListMissedUsage(ctx context.Context, now time.Time) ([]string, error) {
    const q = `SELECT r.id
               FROM reservations r
               JOIN usage_records u ON u.reservation_id = r.id
               WHERE r.status = ? AND u.status = ? AND r.end_time < ?
               ORDER BY r.end_time ASC`
    var ids []string
    if err := s.db.SelectContext(ctx, &ids, q, model.StatusApproved, model.UsageNotStarted, now.UTC()); err != nil {
        return nil, fmt.Errorf("list missed usage: %w", err)
    }
    return ids, nil
}

func filterClause(f model.Filter) (string, []interface{}) {
    var conds []string
    var args []interface{}
    if f.UserID != "" {
        conds = append(conds, "user_id = ?")
        args = append(args, f.UserID)
    }
    if f.EquipmentID != "" {
        conds = append(conds, "equipment_id = ?")
        args = append(args, f.EquipmentID)
    }
    if f.Status != "" {
        conds = append(conds, "status = ?")
        args = append(args, f.Status)
    }
    if f.StartDate != nil {
        conds = append(conds, "end_time > ?")
        args = append(args, f.StartDate.UTC())
    }
    if f.EndDate != nil {
        conds = append(conds, "start_time < ?")
        args = append(args, f.EndDate.UTC())
    }
    if len(conds) == 0 {
        return "", nil
    }
    return " WHERE " + strings.Join(conds, " AND "), args
}

// mysqlTx implements Tx on top of an open sqlx transaction.
type mysqlTx struct {
    tx *sqlx.Tx
}

func (t *mysqlTx) LockEquipment(ctx context.Context, equipmentID string) error {
    return lockEquipmentTx(ctx, t.tx, equipmentID)
}

// HasOverlap reports whether a blocking reservation on equipmentID
// intersects [start, end).  excludeID may be empty.
func (t *mysqlTx) HasOverlap(ctx context.Context, equipmentID string, start, end time.Time, excludeID string) (bool, error) {
    const q = `SELECT EXISTS (
                   SELECT 1 FROM reservations
                   WHERE equipment_id = ?
                     AND status IN (?, ?)
                     AND start_time < ?
                     AND end_time > ?
                     AND id <> ?
               )`
    var exists bool
    err := t.tx.GetContext(ctx, &exists, q,
        equipmentID, model.StatusPending, model.StatusApproved, end.UTC(), start.UTC(), excludeID)
    if err != nil {
        return false, fmt.Errorf("check overlap: %w", err)
    }
    return exists, nil
}

// Insert writes all three records of a new aggregate.
func (t *mysqlTx) Insert(ctx context.Context, agg *model.Aggregate) error {
    const insRes = `INSERT INTO reservations (` + reservationColumns + `)
                    VALUES (:id, :user_id, :equipment_id, :start_time, :end_time, :status, :purpose, :notes, :created_at, :updated_at)`
    if _, err := t.tx.NamedExecContext(ctx, insRes, agg.Reservation); err != nil {
        return fmt.Errorf("insert reservation: %w", err)
    }
    if agg.Approval != nil {
        rec, err := toApprovalRecord(agg.Approval)
        if err != nil {
            return err
        }
        const q = `INSERT INTO approvals (id, reservation_id, status, approver_id, comments, approval_date, approval_history)
                   VALUES (:id, :reservation_id, :status, :approver_id, :comments, :approval_date, :approval_history)`
        if _, err := t.tx.NamedExecContext(ctx, q, rec); err != nil {
            return fmt.Errorf("insert approval: %w", err)
        }
    }
    if agg.Usage != nil {
        rec, err := toUsageRecord(agg.Usage)
        if err != nil {
            return err
        }
        const q = `INSERT INTO usage_records (id, reservation_id, status, actual_start_time, actual_end_time, data_volume, telemetry, notes)
                   VALUES (:id, :reservation_id, :status, :actual_start_time, :actual_end_time, :data_volume, :telemetry, :notes)`
        if _, err := t.tx.NamedExecContext(ctx, q, rec); err != nil {
            return fmt.Errorf("insert usage record: %w", err)
        }
    }
    return nil
}

// LoadForUpdate reads the equipment id without locking, takes the
// equipment lock, and only then locks the reservation rows.  Equipment is
// immutable after creation, so the unlocked read cannot go stale.
func (t *mysqlTx) LoadForUpdate(ctx context.Context, id string) (*model.Aggregate, error) {
    var equipmentID string
    err := t.tx.GetContext(ctx, &equipmentID, `SELECT equipment_id FROM reservations WHERE id = ?`, id)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, notFound(id)
    }
    if err != nil {
        return nil, fmt.Errorf("load reservation %s: %w", id, err)
    }
    if err := lockEquipmentTx(ctx, t.tx, equipmentID); err != nil {
        return nil, err
    }
    return loadAggregate(ctx, t.tx, id, true)
}

// Save rewrites the mutable columns of every record in agg.
func (t *mysqlTx) Save(ctx context.Context, agg *model.Aggregate) error {
    r := agg.Reservation
    // Existence was established by LoadForUpdate.  MySQL reports
    // matched-but-unchanged rows as zero affected, so RowsAffected is not
    // checked.
    if _, err := t.tx.ExecContext(ctx,
        `UPDATE reservations
         SET start_time = ?, end_time = ?, status = ?, purpose = ?, notes = ?, updated_at = ?
         WHERE id = ?`,
        r.StartTime.UTC(), r.EndTime.UTC(), r.Status, r.Purpose, r.Notes, r.UpdatedAt.UTC(), r.ID,
    ); err != nil {
        return fmt.Errorf("update reservation: %w", err)
    }

    if agg.Approval != nil {
        rec, err := toApprovalRecord(agg.Approval)
        if err != nil {
            return err
        }
        const q = `UPDATE approvals
                   SET status = :status, approver_id = :approver_id, comments = :comments,
                       approval_date = :approval_date, approval_history = :approval_history
                   WHERE id = :id`
        if _, err := t.tx.NamedExecContext(ctx, q, rec); err != nil {
            return fmt.Errorf("update approval: %w", err)
        }
    }
    if agg.Usage != nil {
        rec, err := toUsageRecord(agg.Usage)
        if err != nil {
            return err
        }
        const q = `UPDATE usage_records
                   SET status = :status, actual_start_time = :actual_start_time, actual_end_time = :actual_end_time,
                       data_volume = :data_volume, telemetry = :telemetry, notes = :notes
                   WHERE id = :id`
        if _, err := t.tx.NamedExecContext(ctx, q, rec); err != nil {
            return fmt.Errorf("update usage record: %w", err)
        }
    }
    return nil
}

// loadAggregate reads a reservation and its sub-records through q.  With
// forUpdate set, every row is read with FOR UPDATE.  A missing approval or
// usage record leaves the corresponding field nil; the service decides
// whether that is an error for the operation at hand.
func loadAggregate(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*model.Aggregate, error) {
    lock := ""
    if forUpdate {
        lock = " FOR UPDATE"
    }

    agg := &model.Aggregate{}
    err := sqlx.GetContext(ctx, q, &agg.Reservation,
        `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`+lock, id)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, notFound(id)
    }
    if err != nil {
        return nil, fmt.Errorf("load reservation %s: %w", id, err)
    }

    var ar approvalRecord
    err = sqlx.GetContext(ctx, q, &ar,
        `SELECT id, reservation_id, status, approver_id, comments, approval_date, approval_history
         FROM approvals WHERE reservation_id = ?`+lock, id)
    switch {
    case errors.Is(err, sql.ErrNoRows):
    case err != nil:
        return nil, fmt.Errorf("load approval for %s: %w", id, err)
    default:
        if agg.Approval, err = ar.toModel(); err != nil {
            return nil, err
        }
    }

    var ur usageRecord
    err = sqlx.GetContext(ctx, q, &ur,
        `SELECT id, reservation_id, status, actual_start_time, actual_end_time, data_volume, telemetry, notes
         FROM usage_records WHERE reservation_id = ?`+lock, id)
    switch {
    case errors.Is(err, sql.ErrNoRows):
    case err != nil:
        return nil, fmt.Errorf("load usage record for %s: %w", id, err)
    default:
        if agg.Usage, err = ur.toModel(); err != nil {
            return nil, err
        }
    }
    return agg, nil
}

func toApprovalRecord(a *model.Approval) (approvalRecord, error) {
    history, err := json.Marshal(a.History)
    if err != nil {
        return approvalRecord{}, fmt.Errorf("encode approval history: %w", err)
    }
    rec := approvalRecord{
        ID:            a.ID,
        ReservationID: a.ReservationID,
        Status:        string(a.Status),
        ApproverID:    nullString(a.ApproverID),
        Comments:      nullString(a.Comments),
        History:       history,
    }
    if a.ApprovalDate != nil {
        rec.ApprovalDate = sql.NullTime{Time: a.ApprovalDate.UTC(), Valid: true}
    }
    return rec, nil
}

func (r approvalRecord) toModel() (*model.Approval, error) {
    a := &model.Approval{
        ID:            r.ID,
        ReservationID: r.ReservationID,
        Status:        model.ApprovalStatus(r.Status),
        ApproverID:    r.ApproverID.String,
        Comments:      r.Comments.String,
    }
    if r.ApprovalDate.Valid {
        d := r.ApprovalDate.Time.UTC()
        a.ApprovalDate = &d
    }
    if len(r.History) > 0 {
        if err := json.Unmarshal(r.History, &a.History); err != nil {
            return nil, fmt.Errorf("decode approval history for %s: %w", r.ReservationID, err)
        }
    }
    return a, nil
}

func toUsageRecord(u *model.UsageRecord) (usageRecord, error) {
    rec := usageRecord{
        ID:            u.ID,
        ReservationID: u.ReservationID,
        Status:        string(u.Status),
        DataVolume:    u.DataVolume,
        Notes:         nullString(u.Notes),
    }
    if u.ActualStartTime != nil {
        rec.ActualStartTime = sql.NullTime{Time: u.ActualStartTime.UTC(), Valid: true}
    }
    if u.ActualEndTime != nil {
        rec.ActualEndTime = sql.NullTime{Time: u.ActualEndTime.UTC(), Valid: true}
    }
    if len(u.Telemetry) > 0 {
        b, err := json.Marshal(u.Telemetry)
        if err != nil {
            return usageRecord{}, fmt.Errorf("encode telemetry: %w", err)
        }
        rec.Telemetry = b
    }
    return rec, nil
}

func (r usageRecord) toModel() (*model.UsageRecord, error) {
    u := &model.UsageRecord{
        ID:            r.ID,
        ReservationID: r.ReservationID,
        Status:        model.UsageStatus(r.Status),
        DataVolume:    r.DataVolume,
        Notes:         r.Notes.String,
    }
    if r.ActualStartTime.Valid {
        t := r.ActualStartTime.Time.UTC()
        u.ActualStartTime = &t
    }
    if r.ActualEndTime.Valid {
        t := r.ActualEndTime.Time.UTC()
        u.ActualEndTime = &t
    }
    if len(r.Telemetry) > 0 {
        if err := json.Unmarshal(r.Telemetry, &u.Telemetry); err != nil {
            return nil, fmt.Errorf("decode telemetry for %s: %w", r.ReservationID, err)
        }
    }
    return u, nil
}

func nullString(s string) sql.NullString {
    return sql.NullString{String: s, Valid: s != ""}
}
