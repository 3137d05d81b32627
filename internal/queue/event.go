// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// ReservationEventsQueue is the durable queue every lifecycle event is
// published to.
const ReservationEventsQueue = "reservation.events"

// EventType names a lifecycle transition.
type EventType string

const (
    EventCreated      EventType = "reservation.created"
    EventUpdated      EventType = "reservation.updated"
    EventApproved     EventType = "reservation.approved"
    EventRejected     EventType = "reservation.rejected"
    EventCancelled    EventType = "reservation.cancelled"
    EventUsageStarted EventType = "reservation.usage_started"
    EventCompleted    EventType = "reservation.completed"
)

// LifecycleEvent is published after a lifecycle operation commits.  It
// carries enough for the notification side to address the requester
// without querying the reservation store.  ID is unique per event so
// consumers can drop redeliveries.
type LifecycleEvent struct {
    ID            string       `json:"id"`
    Type          EventType    `json:"type"`
    ReservationID string       `json:"reservation_id"`
    UserID        string       `json:"user_id"`
    EquipmentID   string       `json:"equipment_id"`
    Status        model.Status `json:"status"`
    StartTime     time.Time    `json:"start_time"`
    EndTime       time.Time    `json:"end_time"`
    ActorID       string       `json:"actor_id,omitempty"`
    OccurredAt    time.Time    `json:"occurred_at"`
}

// NewLifecycleEvent builds the event for r after a transition performed by
// actorID.
func NewLifecycleEvent(t EventType, r model.Reservation, actorID string, now time.Time) LifecycleEvent {
    return LifecycleEvent{
        ID:            uuid.NewString(),
        Type:          t,
        ReservationID: r.ID,
        UserID:        r.UserID,
        EquipmentID:   r.EquipmentID,
        Status:        r.Status,
        StartTime:     r.StartTime,
        EndTime:       r.EndTime,
        ActorID:       actorID,
        OccurredAt:    now.UTC(),
    }
}
