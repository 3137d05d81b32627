package model

import "time"

// Status is the lifecycle state of a reservation.
//
//  pending  -> approved | rejected | canceled
//  approved -> canceled | completed (completed only via usage end)
//
// rejected, canceled and completed are terminal.
type Status string

const (
    StatusPending   Status = "pending"
    StatusApproved  Status = "approved"
    StatusRejected  Status = "rejected"
    StatusCanceled  Status = "canceled"
    StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
    switch s {
    case StatusPending, StatusApproved, StatusRejected, StatusCanceled, StatusCompleted:
        return true
    }
    return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
    return s == StatusRejected || s == StatusCanceled || s == StatusCompleted
}

// Blocking reports whether a reservation in status s holds its time window
// against other reservations on the same equipment.
func (s Status) Blocking() bool {
    return s == StatusPending || s == StatusApproved
}

var transitions = map[Status][]Status{
    StatusPending:  {StatusApproved, StatusRejected, StatusCanceled},
    StatusApproved: {StatusCanceled, StatusCompleted},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
    for _, s := range transitions[from] {
        if s == to {
            return true
        }
    }
    return false
}

// Reservation is a request to use one equipment item during the half-open
// window [StartTime, EndTime).  Reservations are never deleted; cancellation
// is a status change.
//
// Fields:
//  ID          – opaque identifier.
//  UserID      – requester and owner of the reservation.
//  EquipmentID – booked equipment; immutable after creation.
//  StartTime   – scheduled start (UTC).
//  EndTime     – scheduled end (UTC), strictly after StartTime.
//  Status      – lifecycle status.
//  Purpose     – required description of the intended use.
//  Notes       – optional free text.
type Reservation struct {
    ID          string    `json:"id" db:"id"`
    UserID      string    `json:"user_id" db:"user_id"`
    EquipmentID string    `json:"equipment_id" db:"equipment_id"`
    StartTime   time.Time `json:"start_time" db:"start_time"`
    EndTime     time.Time `json:"end_time" db:"end_time"`
    Status      Status    `json:"status" db:"status"`
    Purpose     string    `json:"purpose" db:"purpose"`
    Notes       string    `json:"notes,omitempty" db:"notes"`
    CreatedAt   time.Time `json:"created_at" db:"created_at"`
    UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Aggregate groups a reservation with its approval and usage records.  The
// three are always read and committed together.
type Aggregate struct {
    Reservation Reservation  `json:"reservation"`
    Approval    *Approval    `json:"approval"`
    Usage       *UsageRecord `json:"usage_record"`
}

// Clone returns a deep copy so stores and callers never share mutable state.
func (a *Aggregate) Clone() *Aggregate {
    if a == nil {
        return nil
    }
    out := &Aggregate{Reservation: a.Reservation}
    if a.Approval != nil {
        out.Approval = a.Approval.clone()
    }
    if a.Usage != nil {
        out.Usage = a.Usage.clone()
    }
    return out
}
