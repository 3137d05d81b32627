package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		a1, a2     time.Time
		b1, b2     time.Time
		wantResult bool
	}{
		{"partial overlap", at(9, 0), at(11, 0), at(10, 0), at(12, 0), true},
		{"adjacent after", at(9, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"adjacent before", at(9, 0), at(11, 0), at(8, 0), at(9, 0), false},
		{"contained", at(9, 0), at(11, 0), at(9, 30), at(10, 30), true},
		{"containing", at(9, 30), at(10, 30), at(9, 0), at(11, 0), true},
		{"identical", at(9, 0), at(11, 0), at(9, 0), at(11, 0), true},
		{"disjoint", at(9, 0), at(10, 0), at(12, 0), at(13, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(tt.a1, tt.a2, tt.b1, tt.b2)
			assert.Equal(t, tt.wantResult, got)
			// symmetric
			assert.Equal(t, got, Overlaps(tt.b1, tt.b2, tt.a1, tt.a2))
			// matches the closed-form definition
			assert.Equal(t, tt.a1.Before(tt.b2) && tt.b1.Before(tt.a2), got)
		})
	}
}

func TestHasOverlap(t *testing.T) {
	existing := []Reservation{
		{ID: "r1", EquipmentID: "e1", StartTime: at(9, 0), EndTime: at(11, 0), Status: StatusApproved},
		{ID: "r2", EquipmentID: "e1", StartTime: at(13, 0), EndTime: at(14, 0), Status: StatusCanceled},
		{ID: "r3", EquipmentID: "e2", StartTime: at(9, 0), EndTime: at(18, 0), Status: StatusPending},
		{ID: "r4", EquipmentID: "e1", StartTime: at(15, 0), EndTime: at(16, 0), Status: StatusCompleted},
		{ID: "r5", EquipmentID: "e1", StartTime: at(16, 0), EndTime: at(17, 0), Status: StatusRejected},
	}

	assert.True(t, HasOverlap(existing, "e1", at(10, 0), at(12, 0), ""))
	assert.False(t, HasOverlap(existing, "e1", at(11, 0), at(12, 0), ""), "touching endpoints")
	assert.False(t, HasOverlap(existing, "e1", at(13, 0), at(17, 0), ""), "terminal statuses never conflict")
	assert.False(t, HasOverlap(existing, "e1", at(10, 0), at(12, 0), "r1"), "excluded self")
	assert.False(t, HasOverlap(existing, "e3", at(9, 0), at(18, 0), ""), "other equipment")
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusApproved))
	assert.True(t, CanTransition(StatusPending, StatusRejected))
	assert.True(t, CanTransition(StatusPending, StatusCanceled))
	assert.True(t, CanTransition(StatusApproved, StatusCanceled))
	assert.True(t, CanTransition(StatusApproved, StatusCompleted))
	assert.False(t, CanTransition(StatusApproved, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))

	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusCanceled, StatusCompleted}
	for _, from := range []Status{StatusRejected, StatusCanceled, StatusCompleted} {
		assert.True(t, from.Terminal())
		assert.False(t, from.Blocking())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApprovalHistory(t *testing.T) {
	a := NewApproval("a1", "r1", "u1", base)
	require.Len(t, a.History, 1)
	assert.Equal(t, ApprovalPending, a.History[0].Status)
	assert.Nil(t, a.ApprovalDate)

	a.MarkUpdated("u1", base.Add(time.Minute))
	require.Len(t, a.History, 2)
	assert.Equal(t, UpdatedComment, a.History[1].Comments)
	assert.Nil(t, a.ApprovalDate)

	require.NoError(t, a.RecordDecision(ApprovalApproved, "m1", "ok", base.Add(2*time.Minute)))
	require.Len(t, a.History, 3)
	assert.Equal(t, ApprovalApproved, a.Status)
	assert.Equal(t, "m1", a.ApproverID)
	require.NotNil(t, a.ApprovalDate)
	assert.Equal(t, base.Add(2*time.Minute), *a.ApprovalDate)

	err := a.RecordDecision(ApprovalRejected, "m1", "", base)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Len(t, a.History, 3)
}

func TestApprovalRejectsUnknownDecision(t *testing.T) {
	a := NewApproval("a1", "r1", "u1", base)
	err := a.RecordDecision(ApprovalPending, "m1", "", base)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Len(t, a.History, 1)
}

func TestUsageLifecycle(t *testing.T) {
	u := NewUsageRecord("u1", "r1")
	_, ok := u.DurationMinutes()
	assert.False(t, ok)

	assert.True(t, errors.Is(u.End(base, EndUsageInput{}), ErrInvalidState))

	require.NoError(t, u.Start(base))
	assert.Equal(t, UsageInProgress, u.Status)
	assert.True(t, errors.Is(u.Start(base), ErrInvalidState))

	vol := int64(1024)
	require.NoError(t, u.End(base.Add(90*time.Minute+20*time.Second), EndUsageInput{
		DataVolume: &vol,
		Telemetry:  map[string]any{"temp": 21.5},
	}))
	assert.Equal(t, UsageCompleted, u.Status)
	assert.Equal(t, int64(1024), u.DataVolume)
	assert.Equal(t, 21.5, u.Telemetry["temp"])

	mins, ok := u.DurationMinutes()
	assert.True(t, ok)
	assert.Equal(t, int64(90), mins)
}

func TestUsageEndMergesOnlySuppliedFields(t *testing.T) {
	u := NewUsageRecord("u1", "r1")
	u.DataVolume = 10
	u.Notes = "keep"
	u.Telemetry = map[string]any{"a": 1, "b": 2}
	require.NoError(t, u.Start(base))
	require.NoError(t, u.End(base.Add(time.Hour), EndUsageInput{Telemetry: map[string]any{"b": 3, "c": 4}}))

	assert.Equal(t, int64(10), u.DataVolume)
	assert.Equal(t, "keep", u.Notes)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, u.Telemetry)
}

func TestUsageEndRejectsNegativeVolume(t *testing.T) {
	u := NewUsageRecord("u1", "r1")
	require.NoError(t, u.Start(base))
	vol := int64(-1)
	err := u.End(base.Add(time.Hour), EndUsageInput{DataVolume: &vol})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, UsageInProgress, u.Status)
}

func TestUsageCancelClosesOpenSession(t *testing.T) {
	u := NewUsageRecord("u1", "r1")
	u.Cancel(base)
	assert.Equal(t, UsageCanceled, u.Status)
	assert.Nil(t, u.ActualEndTime)

	u = NewUsageRecord("u2", "r2")
	require.NoError(t, u.Start(base))
	u.Cancel(base.Add(30 * time.Minute))
	mins, ok := u.DurationMinutes()
	assert.True(t, ok)
	assert.Equal(t, int64(30), mins)
}

func TestValidateCreate(t *testing.T) {
	now := base.Add(-24 * time.Hour)
	valid := CreateInput{UserID: "u1", EquipmentID: "e1", StartTime: at(9, 0), EndTime: at(11, 0), Purpose: "XRD scan"}
	require.NoError(t, ValidateCreate(valid, now))

	cases := map[string]func(in *CreateInput){
		"start in past":    func(in *CreateInput) { in.StartTime = now.Add(-time.Minute) },
		"start equals now": func(in *CreateInput) { in.StartTime = now },
		"end before start": func(in *CreateInput) { in.EndTime = at(8, 0) },
		"end equals start": func(in *CreateInput) { in.EndTime = in.StartTime },
		"blank purpose":    func(in *CreateInput) { in.Purpose = "   " },
		"missing equip":    func(in *CreateInput) { in.EquipmentID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			err := ValidateCreate(in, now)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	r := Reservation{ID: "r1", StartTime: at(9, 0), EndTime: at(11, 0), Status: StatusPending, Purpose: "scan"}
	end := at(8, 0)
	assert.True(t, errors.Is(ValidateUpdate(r, UpdateInput{EndTime: &end}), ErrValidation))

	blank := ""
	assert.True(t, errors.Is(ValidateUpdate(r, UpdateInput{Purpose: &blank}), ErrValidation))
	assert.True(t, errors.Is(ValidateUpdate(r, UpdateInput{}), ErrValidation))

	newEnd := at(12, 0)
	require.NoError(t, ValidateUpdate(r, UpdateInput{EndTime: &newEnd}))

	for _, s := range []Status{StatusApproved, StatusRejected, StatusCanceled, StatusCompleted} {
		r.Status = s
		assert.True(t, errors.Is(ValidateUpdate(r, UpdateInput{EndTime: &newEnd}), ErrInvalidState), s)
	}
}

func TestUpdateApplyReportsTimeChanges(t *testing.T) {
	r := Reservation{StartTime: at(9, 0), EndTime: at(11, 0), Purpose: "scan"}
	p := "  new purpose "
	got, moved := UpdateInput{Purpose: &p}.Apply(r)
	assert.False(t, moved)
	assert.Equal(t, "new purpose", got.Purpose)

	same := at(9, 0)
	_, moved = UpdateInput{StartTime: &same}.Apply(r)
	assert.False(t, moved)

	later := at(10, 0)
	got, moved = UpdateInput{StartTime: &later}.Apply(r)
	assert.True(t, moved)
	assert.Equal(t, later, got.StartTime)
}

func TestErrorKinds(t *testing.T) {
	err := Errorf(KindConflict, "overlaps %s", "r1")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))

	wrapped := Wrap(KindUnavailable, "catalog unreachable", errors.New("timeout"))
	assert.Equal(t, "catalog unreachable: timeout", wrapped.Error())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestFilter(t *testing.T) {
	f := Filter{Page: 0, Limit: 1000}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageLimit, f.Limit)

	f = Filter{Page: 3, Limit: 10}.Normalize()
	assert.Equal(t, 20, f.Offset())

	p := NewPage(nil, 21, f)
	assert.Equal(t, 3, p.Pages)
	assert.NotNil(t, p.Items)

	from, to := at(10, 0), at(12, 0)
	r := Reservation{UserID: "u1", EquipmentID: "e1", Status: StatusPending, StartTime: at(9, 0), EndTime: at(11, 0)}
	assert.True(t, Filter{UserID: "u1", StartDate: &from, EndDate: &to}.Matches(r))
	assert.False(t, Filter{Status: StatusApproved}.Matches(r))
	late := at(11, 0)
	assert.False(t, Filter{StartDate: &late}.Matches(r))
}

func TestAggregateCloneIsDeep(t *testing.T) {
	a := &Aggregate{
		Reservation: Reservation{ID: "r1"},
		Approval:    NewApproval("a1", "r1", "u1", base),
		Usage:       NewUsageRecord("u1", "r1"),
	}
	a.Usage.Telemetry = map[string]any{"k": 1}
	c := a.Clone()
	c.Approval.History = append(c.Approval.History, ApprovalEntry{Status: ApprovalApproved})
	c.Usage.Telemetry["k"] = 2
	assert.Len(t, a.Approval.History, 1)
	assert.Equal(t, 1, a.Usage.Telemetry["k"])
}
