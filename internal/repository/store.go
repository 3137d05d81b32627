package repository

import (
    "context"
    "time"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// Store persists reservation aggregates.  Every lifecycle mutation runs
// inside WithTx so that the reservation, its approval and its usage record
// commit or roll back together.  Two implementations exist: MySQLStore for
// durable storage and MemoryStore for tests and degraded mode.  The
// implementation is chosen at composition time in cmd/server.
type Store interface {
    // WithTx runs fn inside one transaction.  When fn returns an error the
    // transaction is rolled back and the error is returned unchanged
    // (storage-level failures are classified first, see classify).
    WithTx(ctx context.Context, fn func(tx Tx) error) error

    // Get returns a snapshot of one aggregate.  A missing reservation
    // yields a model.ErrNotFound-kind error.
    Get(ctx context.Context, id string) (*model.Aggregate, error)

    // List returns one page of reservations matching f.  f must already be
    // normalized.
    List(ctx context.Context, f model.Filter) (model.Page, error)

    // ListMissedUsage returns the ids of approved reservations whose
    // window ended before now while their usage never started.
    ListMissedUsage(ctx context.Context, now time.Time) ([]string, error)
}

// Tx is the transactional view handed to Store.WithTx callbacks.  Writers
// must call LockEquipment before HasOverlap so that the overlap check and
// the subsequent write cannot interleave with another writer on the same
// equipment.
type Tx interface {
    LockEquipment(ctx context.Context, equipmentID string) error
    HasOverlap(ctx context.Context, equipmentID string, start, end time.Time, excludeID string) (bool, error)
    Insert(ctx context.Context, agg *model.Aggregate) error
    // LoadForUpdate locks the aggregate's equipment and then the aggregate
    // itself, and returns a private copy the caller may mutate.
    LoadForUpdate(ctx context.Context, id string) (*model.Aggregate, error)
    Save(ctx context.Context, agg *model.Aggregate) error
}
