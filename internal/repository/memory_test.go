package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-equipment-reservation/internal/model"
)

func newAggregate(id, equipmentID string, start, end time.Time, status model.Status) *model.Aggregate {
	return &model.Aggregate{
		Reservation: model.Reservation{ID: id, UserID: "u1", EquipmentID: equipmentID, StartTime: start, EndTime: end, Status: status, Purpose: "scan"},
		Approval:    model.NewApproval("a-"+id, id, "u1", start),
		Usage:       model.NewUsageRecord("g-"+id, id),
	}
}

func insert(t *testing.T, s *MemoryStore, agg *model.Aggregate) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), agg)
	}))
}

func TestMemoryStore_RollbackDiscardsStagedWrites(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.Insert(context.Background(), newAggregate("r1", "e1", t9, t11, model.StatusPending)); err != nil {
			return err
		}
		return boom
	})

	assert.Equal(t, boom, err)
	_, err = s.Get(context.Background(), "r1")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestMemoryStore_TxSeesItsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.Insert(ctx, newAggregate("r1", "e1", t9, t11, model.StatusPending)))
		overlap, err := tx.HasOverlap(ctx, "e1", t9.Add(time.Hour), t11.Add(time.Hour), "")
		require.NoError(t, err)
		assert.True(t, overlap)

		agg, err := tx.LoadForUpdate(ctx, "r1")
		require.NoError(t, err)
		agg.Reservation.Status = model.StatusCanceled
		require.NoError(t, tx.Save(ctx, agg))

		overlap, err = tx.HasOverlap(ctx, "e1", t9, t11, "")
		require.NoError(t, err)
		assert.False(t, overlap, "canceled reservation no longer blocks")
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, got.Reservation.Status)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	insert(t, s, newAggregate("r1", "e1", t9, t11, model.StatusPending))

	got, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	got.Reservation.Status = model.StatusApproved
	got.Approval.History = append(got.Approval.History, model.ApprovalEntry{})

	again, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, again.Reservation.Status)
	assert.Len(t, again.Approval.History, 1)
}

func TestMemoryStore_DuplicateInsertConflicts(t *testing.T) {
	s := NewMemoryStore()
	insert(t, s, newAggregate("r1", "e1", t9, t11, model.StatusPending))

	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), newAggregate("r1", "e2", t9, t11, model.StatusPending))
	})
	assert.True(t, errors.Is(err, model.ErrConflict))
}

func TestMemoryStore_SaveMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.Save(context.Background(), newAggregate("r1", "e1", t9, t11, model.StatusPending))
	})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestMemoryStore_ListFiltersAndPages(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		start := t9.Add(time.Duration(i) * 3 * time.Hour)
		insert(t, s, newAggregate(fmt.Sprintf("r%d", i), "e1", start, start.Add(time.Hour), model.StatusPending))
	}
	insert(t, s, newAggregate("other", "e2", t9, t11, model.StatusPending))

	page, err := s.List(context.Background(), model.Filter{EquipmentID: "e1", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "r2", page.Items[0].ID)
	assert.Equal(t, "r3", page.Items[1].ID)

	page, err = s.List(context.Background(), model.Filter{EquipmentID: "e1", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestMemoryStore_ListMissedUsage(t *testing.T) {
	s := NewMemoryStore()
	insert(t, s, newAggregate("missed", "e1", t9, t11, model.StatusApproved))
	insert(t, s, newAggregate("pending", "e2", t9, t11, model.StatusPending))
	insert(t, s, newAggregate("future", "e3", t11, t11.Add(time.Hour), model.StatusApproved))

	started := newAggregate("started", "e4", t9, t11, model.StatusApproved)
	require.NoError(t, started.Usage.Start(t9))
	insert(t, s, started)

	ids, err := s.ListMissedUsage(context.Background(), t11.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"missed"}, ids)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
