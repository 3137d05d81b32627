package model

import (
    "math"
    "time"
)

// UsageStatus is the state of actual instrument use.
type UsageStatus string

const (
    UsageNotStarted UsageStatus = "not_started"
    UsageInProgress UsageStatus = "in_progress"
    UsageCompleted  UsageStatus = "completed"
    UsageCanceled   UsageStatus = "canceled"
    UsageError      UsageStatus = "error"
)

// UsageRecord records real instrument use, separate from the reservation's
// scheduled window.  ActualStartTime and ActualEndTime stay nil until the
// owner starts and ends the session.
type UsageRecord struct {
    ID              string         `json:"id"`
    ReservationID   string         `json:"reservation_id"`
    Status          UsageStatus    `json:"status"`
    ActualStartTime *time.Time     `json:"actual_start_time,omitempty"`
    ActualEndTime   *time.Time     `json:"actual_end_time,omitempty"`
    DataVolume      int64          `json:"data_volume"`
    Telemetry       map[string]any `json:"telemetry,omitempty"`
    Notes           string         `json:"notes,omitempty"`
}

// EndUsageInput carries the optional fields supplied when a session ends.
// Nil fields leave the stored value untouched; telemetry keys are merged.
type EndUsageInput struct {
    DataVolume *int64         `json:"data_volume"`
    Telemetry  map[string]any `json:"telemetry"`
    Notes      *string        `json:"notes"`
}

// NewUsageRecord returns a usage record that has not started.
func NewUsageRecord(id, reservationID string) *UsageRecord {
    return &UsageRecord{ID: id, ReservationID: reservationID, Status: UsageNotStarted}
}

// Start begins the session at now.
func (u *UsageRecord) Start(now time.Time) error {
    if u.Status != UsageNotStarted {
        return Errorf(KindInvalidState, "usage cannot start from %s", u.Status)
    }
    started := now
    u.ActualStartTime = &started
    u.Status = UsageInProgress
    return nil
}

// End closes the session at now and merges the supplied fields.
func (u *UsageRecord) End(now time.Time, in EndUsageInput) error {
    if u.Status != UsageInProgress {
        return Errorf(KindInvalidState, "usage cannot end from %s", u.Status)
    }
    if in.DataVolume != nil && *in.DataVolume < 0 {
        return Errorf(KindValidation, "data volume must not be negative")
    }
    ended := now
    u.ActualEndTime = &ended
    u.Status = UsageCompleted
    if in.DataVolume != nil {
        u.DataVolume = *in.DataVolume
    }
    if len(in.Telemetry) > 0 {
        if u.Telemetry == nil {
            u.Telemetry = make(map[string]any, len(in.Telemetry))
        }
        for k, v := range in.Telemetry {
            u.Telemetry[k] = v
        }
    }
    if in.Notes != nil {
        u.Notes = *in.Notes
    }
    return nil
}

// Cancel marks the usage canceled.  An open session is closed at now so its
// duration stays computable.
func (u *UsageRecord) Cancel(now time.Time) {
    if u.Status == UsageInProgress && u.ActualEndTime == nil {
        ended := now
        u.ActualEndTime = &ended
    }
    u.Status = UsageCanceled
}

// DurationMinutes returns the rounded actual duration in minutes.  The
// second result is false when either timestamp is missing.
func (u *UsageRecord) DurationMinutes() (int64, bool) {
    if u == nil || u.ActualStartTime == nil || u.ActualEndTime == nil {
        return 0, false
    }
    d := u.ActualEndTime.Sub(*u.ActualStartTime)
    return int64(math.Round(d.Minutes())), true
}

func (u *UsageRecord) clone() *UsageRecord {
    out := *u
    if u.ActualStartTime != nil {
        t := *u.ActualStartTime
        out.ActualStartTime = &t
    }
    if u.ActualEndTime != nil {
        t := *u.ActualEndTime
        out.ActualEndTime = &t
    }
    if u.Telemetry != nil {
        out.Telemetry = make(map[string]any, len(u.Telemetry))
        for k, v := range u.Telemetry {
            out.Telemetry[k] = v
        }
    }
    return &out
}
