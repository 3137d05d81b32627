package repository

import (
    "context"
    "fmt"

    "github.com/jmoiron/sqlx"
)

// lockEquipmentTx serialises writers on one equipment item.  The
// equipment_locks table holds one row per equipment id; the row is created
// on first use with INSERT IGNORE and then locked with SELECT ... FOR
// UPDATE.  The lock is held until the surrounding transaction commits or
// rolls back, so an overlap check and the write that follows it are never
// interleaved with another writer on the same equipment.  Reservations on
// different equipment do not contend.
//
// Lock order is always equipment row first, reservation rows second.  Every
// caller in this package follows that order, which keeps deadlocks between
// our own writers impossible; a deadlock reported by the server anyway is
// surfaced as a conflict by classify.
func lockEquipmentTx(ctx context.Context, tx *sqlx.Tx, equipmentID string) error {
    if _, err := tx.ExecContext(ctx,
        `INSERT IGNORE INTO equipment_locks (equipment_id) VALUES (?)`,
        equipmentID,
    ); err != nil {
        return fmt.Errorf("create equipment lock %s: %w", equipmentID, err)
    }
    var locked string
    if err := tx.GetContext(ctx, &locked,
        `SELECT equipment_id FROM equipment_locks WHERE equipment_id = ? FOR UPDATE`,
        equipmentID,
    ); err != nil {
        return fmt.Errorf("acquire equipment lock %s: %w", equipmentID, err)
    }
    return nil
}
