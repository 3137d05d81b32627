package model

import "time"

// ApprovalStatus is the decision state of an approval record.
type ApprovalStatus string

const (
    ApprovalPending  ApprovalStatus = "pending"
    ApprovalApproved ApprovalStatus = "approved"
    ApprovalRejected ApprovalStatus = "rejected"
)

// UpdatedComment is recorded in the history whenever an owner edits a
// pending reservation.
const UpdatedComment = "updated, awaiting approval"

// ApprovalEntry is one row of the append-only approval audit trail.
type ApprovalEntry struct {
    Status     ApprovalStatus `json:"status"`
    ApproverID string         `json:"approver_id,omitempty"`
    Date       time.Time      `json:"date"`
    Comments   string         `json:"comments,omitempty"`
}

// Approval tracks the lab manager's decision on a reservation.  History is
// never rewritten: every status change appends an entry, and the first
// entry is always pending.
type Approval struct {
    ID            string          `json:"id"`
    ReservationID string          `json:"reservation_id"`
    Status        ApprovalStatus  `json:"status"`
    ApproverID    string          `json:"approver_id,omitempty"`
    Comments      string          `json:"comments,omitempty"`
    ApprovalDate  *time.Time      `json:"approval_date,omitempty"`
    History       []ApprovalEntry `json:"approval_history"`
}

// NewApproval returns a pending approval seeded with its first history entry.
func NewApproval(id, reservationID, requesterID string, now time.Time) *Approval {
    return &Approval{
        ID:            id,
        ReservationID: reservationID,
        Status:        ApprovalPending,
        History: []ApprovalEntry{{
            Status:     ApprovalPending,
            ApproverID: requesterID,
            Date:       now,
            Comments:   "reservation created",
        }},
    }
}

// RecordDecision stores a terminal decision and appends it to the history.
func (a *Approval) RecordDecision(status ApprovalStatus, approverID, comments string, now time.Time) error {
    if status != ApprovalApproved && status != ApprovalRejected {
        return Errorf(KindValidation, "decision must be approved or rejected, got %q", status)
    }
    if a.Status != ApprovalPending {
        return Errorf(KindInvalidState, "approval already %s", a.Status)
    }
    a.Status = status
    a.ApproverID = approverID
    a.Comments = comments
    decided := now
    a.ApprovalDate = &decided
    a.History = append(a.History, ApprovalEntry{
        Status:     status,
        ApproverID: approverID,
        Date:       now,
        Comments:   comments,
    })
    return nil
}

// MarkUpdated records that the owner edited the reservation and that it is
// waiting for a fresh decision.
func (a *Approval) MarkUpdated(actorID string, now time.Time) {
    a.Status = ApprovalPending
    a.History = append(a.History, ApprovalEntry{
        Status:     ApprovalPending,
        ApproverID: actorID,
        Date:       now,
        Comments:   UpdatedComment,
    })
}

func (a *Approval) clone() *Approval {
    out := *a
    if a.ApprovalDate != nil {
        d := *a.ApprovalDate
        out.ApprovalDate = &d
    }
    out.History = append([]ApprovalEntry(nil), a.History...)
    return &out
}
