package model

import (
    "strings"
    "time"
    "unicode/utf8"
)

const (
    MaxPurposeLen = 500
    MaxNotesLen   = 2000
)

// CreateInput is the requester-supplied content of a new reservation.
type CreateInput struct {
    UserID      string
    EquipmentID string
    StartTime   time.Time
    EndTime     time.Time
    Purpose     string
    Notes       string
}

// UpdateInput is a partial edit of a pending reservation.  Equipment cannot
// be changed after creation.
type UpdateInput struct {
    StartTime *time.Time `json:"start_time"`
    EndTime   *time.Time `json:"end_time"`
    Purpose   *string    `json:"purpose"`
    Notes     *string    `json:"notes"`
}

// Empty reports whether the patch changes nothing.
func (in UpdateInput) Empty() bool {
    return in.StartTime == nil && in.EndTime == nil && in.Purpose == nil && in.Notes == nil
}

// Apply returns r with the patch applied.  The second result reports
// whether the scheduled window moved.
func (in UpdateInput) Apply(r Reservation) (Reservation, bool) {
    timesChanged := false
    if in.StartTime != nil && !in.StartTime.Equal(r.StartTime) {
        r.StartTime = in.StartTime.UTC()
        timesChanged = true
    }
    if in.EndTime != nil && !in.EndTime.Equal(r.EndTime) {
        r.EndTime = in.EndTime.UTC()
        timesChanged = true
    }
    if in.Purpose != nil {
        r.Purpose = strings.TrimSpace(*in.Purpose)
    }
    if in.Notes != nil {
        r.Notes = strings.TrimSpace(*in.Notes)
    }
    return r, timesChanged
}

// ValidateCreate checks the field-level invariants of a new reservation.
// StartTime must be strictly after now.
func ValidateCreate(in CreateInput, now time.Time) error {
    if strings.TrimSpace(in.UserID) == "" {
        return Errorf(KindValidation, "user id is required")
    }
    if strings.TrimSpace(in.EquipmentID) == "" {
        return Errorf(KindValidation, "equipment id is required")
    }
    if in.StartTime.IsZero() || in.EndTime.IsZero() {
        return Errorf(KindValidation, "start_time and end_time are required")
    }
    if !in.StartTime.After(now) {
        return Errorf(KindValidation, "start_time must be in the future")
    }
    return validateContent(in.StartTime, in.EndTime, in.Purpose, in.Notes)
}

// ValidateUpdate checks that existing may be edited and that the patched
// reservation still satisfies the field invariants.
func ValidateUpdate(existing Reservation, in UpdateInput) error {
    if existing.Status != StatusPending {
        return Errorf(KindInvalidState, "only pending reservations can be edited, status is %s", existing.Status)
    }
    if in.Empty() {
        return Errorf(KindValidation, "no fields to update")
    }
    merged, _ := in.Apply(existing)
    return validateContent(merged.StartTime, merged.EndTime, merged.Purpose, merged.Notes)
}

func validateContent(start, end time.Time, purpose, notes string) error {
    if !end.After(start) {
        return Errorf(KindValidation, "end_time must be after start_time")
    }
    purpose = strings.TrimSpace(purpose)
    if purpose == "" {
        return Errorf(KindValidation, "purpose is required")
    }
    if utf8.RuneCountInString(purpose) > MaxPurposeLen {
        return Errorf(KindValidation, "purpose must be at most %d characters", MaxPurposeLen)
    }
    if utf8.RuneCountInString(strings.TrimSpace(notes)) > MaxNotesLen {
        return Errorf(KindValidation, "notes must be at most %d characters", MaxNotesLen)
    }
    return nil
}
