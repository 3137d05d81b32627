package repository

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// MemoryStore keeps aggregates in process memory.  It backs tests and the
// degraded mode selected with STORE_DRIVER=memory.  A single mutex
// serialises transactions, which trivially makes the overlap check and the
// following write atomic.  Writes made inside a transaction are staged and
// only become visible when the callback returns nil.
type MemoryStore struct {
    mu    sync.Mutex
    items map[string]*model.Aggregate
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
    return &MemoryStore{items: make(map[string]*model.Aggregate)}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()

    tx := &memoryTx{store: s, staged: make(map[string]*model.Aggregate)}
    if err := fn(tx); err != nil {
        return err
    }
    for id, agg := range tx.staged {
        s.items[id] = agg
    }
    return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Aggregate, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    agg, ok := s.items[id]
    if !ok {
        return nil, notFound(id)
    }
    return agg.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, f model.Filter) (model.Page, error) {
    s.mu.Lock()
    matched := make([]model.Reservation, 0, len(s.items))
    for _, agg := range s.items {
        if f.Matches(agg.Reservation) {
            matched = append(matched, agg.Reservation)
        }
    }
    s.mu.Unlock()

    sort.Slice(matched, func(i, j int) bool {
        a, b := matched[i], matched[j]
        if !a.StartTime.Equal(b.StartTime) {
            return a.StartTime.Before(b.StartTime)
        }
        return a.ID < b.ID
    })

    total := len(matched)
    from := f.Offset()
    if from > total {
        from = total
    }
    to := from + f.Limit
    if to > total {
        to = total
    }
    return model.NewPage(matched[from:to], total, f), nil
}

func (s *MemoryStore) ListMissedUsage(ctx context.Context, now time.Time) ([]string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var ids []string
    for id, agg := range s.items {
        if agg.Reservation.Status != model.StatusApproved || agg.Usage == nil {
            continue
        }
        if agg.Usage.Status == model.UsageNotStarted && agg.Reservation.EndTime.Before(now) {
            ids = append(ids, id)
        }
    }
    sort.Strings(ids)
    return ids, nil
}

// memoryTx reads through its staged writes to the committed map.
type memoryTx struct {
    store  *MemoryStore
    staged map[string]*model.Aggregate
}

func (t *memoryTx) view(id string) (*model.Aggregate, bool) {
    if agg, ok := t.staged[id]; ok {
        return agg, true
    }
    agg, ok := t.store.items[id]
    return agg, ok
}

// LockEquipment is a no-op: the store mutex is already held.
func (t *memoryTx) LockEquipment(ctx context.Context, equipmentID string) error {
    return nil
}

func (t *memoryTx) HasOverlap(ctx context.Context, equipmentID string, start, end time.Time, excludeID string) (bool, error) {
    candidates := make([]model.Reservation, 0, len(t.store.items)+len(t.staged))
    for id, agg := range t.store.items {
        if _, shadowed := t.staged[id]; shadowed {
            continue
        }
        candidates = append(candidates, agg.Reservation)
    }
    for _, agg := range t.staged {
        candidates = append(candidates, agg.Reservation)
    }
    return model.HasOverlap(candidates, equipmentID, start, end, excludeID), nil
}

func (t *memoryTx) Insert(ctx context.Context, agg *model.Aggregate) error {
    if _, exists := t.view(agg.Reservation.ID); exists {
        return model.Errorf(model.KindConflict, "reservation %s already exists", agg.Reservation.ID)
    }
    t.staged[agg.Reservation.ID] = agg.Clone()
    return nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id string) (*model.Aggregate, error) {
    agg, ok := t.view(id)
    if !ok {
        return nil, notFound(id)
    }
    return agg.Clone(), nil
}

func (t *memoryTx) Save(ctx context.Context, agg *model.Aggregate) error {
    if _, ok := t.view(agg.Reservation.ID); !ok {
        return notFound(agg.Reservation.ID)
    }
    t.staged[agg.Reservation.ID] = agg.Clone()
    return nil
}
