// Package service implements the reservation lifecycle: creation,
// editing, cancellation, approval and usage tracking.  Every operation runs
// in one store transaction so a reservation and its approval and usage
// records always change together, and lifecycle events are published only
// after that transaction commits.
package service

import (
    "context"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/gommon/log"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
    q "github.com/iliyamo/lab-equipment-reservation/internal/queue"
    "github.com/iliyamo/lab-equipment-reservation/internal/repository"
)

// DefaultEarlyStart is how long before the scheduled start usage may begin.
const DefaultEarlyStart = 15 * time.Minute

// DefaultPublishTimeout bounds one event publication.
const DefaultPublishTimeout = 3 * time.Second

// Catalog reports equipment availability.
type Catalog interface {
    GetEquipment(ctx context.Context, id string) (model.Equipment, error)
}

// Publisher delivers lifecycle events.  Delivery is best effort.
type Publisher interface {
    Publish(ctx context.Context, ev q.LifecycleEvent) error
}

// Caller is the authenticated identity behind a request.  CanApprove is the
// lab-manager capability.
type Caller struct {
    UserID     string
    CanApprove bool
}

// ApproveInput is a lab manager's decision on a pending reservation.
type ApproveInput struct {
    ReservationID string
    ApproverID    string
    CanApprove    bool
    Decision      model.ApprovalStatus
    Comments      string
}

// Options tunes a ReservationService.  Zero values select defaults.
type Options struct {
    EarlyStart     time.Duration
    PublishTimeout time.Duration
    Now            func() time.Time
    NewID          func() string
    Logger         *log.Logger
}

// ReservationService is the reservation lifecycle controller.
type ReservationService struct {
    store          repository.Store
    catalog        Catalog
    publisher      Publisher
    earlyStart     time.Duration
    publishTimeout time.Duration
    now            func() time.Time
    newID          func() string
    log            *log.Logger
}

// NewReservationService wires the controller.  store and catalog must be
// non-nil; a nil publisher disables events.
func NewReservationService(store repository.Store, catalog Catalog, publisher Publisher, opts Options) *ReservationService {
    if store == nil || catalog == nil {
        panic("nil dependency passed to NewReservationService")
    }
    s := &ReservationService{
        store:          store,
        catalog:        catalog,
        publisher:      publisher,
        earlyStart:     opts.EarlyStart,
        publishTimeout: opts.PublishTimeout,
        now:            opts.Now,
        newID:          opts.NewID,
        log:            opts.Logger,
    }
    if s.earlyStart <= 0 {
        s.earlyStart = DefaultEarlyStart
    }
    if s.publishTimeout <= 0 {
        s.publishTimeout = DefaultPublishTimeout
    }
    if s.now == nil {
        s.now = time.Now
    }
    if s.newID == nil {
        s.newID = uuid.NewString
    }
    if s.log == nil {
        s.log = log.New("reservation-service")
    }
    return s
}

// Create books [StartTime, EndTime) on the equipment for the requester.
// The catalog is consulted before any local write; the overlap check and
// the insert share one transaction under the equipment lock.
func (s *ReservationService) Create(ctx context.Context, in model.CreateInput) (*model.Aggregate, error) {
    now := s.now().UTC()
    in.Purpose = strings.TrimSpace(in.Purpose)
    in.Notes = strings.TrimSpace(in.Notes)
    in.StartTime = in.StartTime.UTC()
    in.EndTime = in.EndTime.UTC()
    if err := model.ValidateCreate(in, now); err != nil {
        return nil, err
    }

    if err := s.checkAvailable(ctx, in.EquipmentID); err != nil {
        return nil, err
    }

    id := s.newID()
    agg := &model.Aggregate{
        Reservation: model.Reservation{
            ID:          id,
            UserID:      in.UserID,
            EquipmentID: in.EquipmentID,
            StartTime:   in.StartTime,
            EndTime:     in.EndTime,
            Status:      model.StatusPending,
            Purpose:     in.Purpose,
            Notes:       in.Notes,
            CreatedAt:   now,
            UpdatedAt:   now,
        },
        Approval: model.NewApproval(s.newID(), id, in.UserID, now),
        Usage:    model.NewUsageRecord(s.newID(), id),
    }

    err := s.store.WithTx(ctx, func(tx repository.Tx) error {
        if err := tx.LockEquipment(ctx, in.EquipmentID); err != nil {
            return err
        }
        if err := checkOverlap(ctx, tx, agg.Reservation, ""); err != nil {
            return err
        }
        return tx.Insert(ctx, agg)
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, q.EventCreated, agg.Reservation, in.UserID)
    return agg.Clone(), nil
}

// Update edits a pending reservation owned by callerID.  Moving the window
// re-runs the overlap check against everything but the reservation itself.
// The approval history records the edit and the reservation stays pending.
func (s *ReservationService) Update(ctx context.Context, id, callerID string, in model.UpdateInput) (*model.Aggregate, error) {
    now := s.now().UTC()
    var out *model.Aggregate
    err := s.store.WithTx(ctx, func(tx repository.Tx) error {
        agg, err := tx.LoadForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if err := requireOwner(agg, callerID); err != nil {
            return err
        }
        if err := model.ValidateUpdate(agg.Reservation, in); err != nil {
            return err
        }
        if agg.Approval == nil {
            return model.Errorf(model.KindNotFound, "approval record for reservation %s not found", id)
        }

        updated, moved := in.Apply(agg.Reservation)
        if moved {
            if err := checkOverlap(ctx, tx, updated, id); err != nil {
                return err
            }
        }
        updated.UpdatedAt = now
        agg.Reservation = updated
        agg.Approval.MarkUpdated(callerID, now)
        if err := tx.Save(ctx, agg); err != nil {
            return err
        }
        out = agg
        return nil
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, q.EventUpdated, out.Reservation, callerID)
    return out.Clone(), nil
}

// Cancel withdraws a pending or approved reservation.  The usage record is
// canceled with it.  Canceling twice is an invalid_state error.
func (s *ReservationService) Cancel(ctx context.Context, id, callerID string) (*model.Aggregate, error) {
    now := s.now().UTC()
    out, err := s.transition(ctx, id, func(agg *model.Aggregate) error {
        if err := requireOwner(agg, callerID); err != nil {
            return err
        }
        if !model.CanTransition(agg.Reservation.Status, model.StatusCanceled) {
            return model.Errorf(model.KindInvalidState, "reservation %s cannot be canceled from %s", id, agg.Reservation.Status)
        }
        agg.Reservation.Status = model.StatusCanceled
        agg.Reservation.UpdatedAt = now
        if agg.Usage != nil {
            agg.Usage.Cancel(now)
        }
        return nil
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, q.EventCancelled, out.Reservation, callerID)
    return out, nil
}

// Approve records a lab manager's decision and mirrors it on the
// reservation.  Only pending reservations can be decided.
func (s *ReservationService) Approve(ctx context.Context, in ApproveInput) (*model.Aggregate, error) {
    if !in.CanApprove {
        return nil, model.Errorf(model.KindForbidden, "lab manager capability required")
    }
    var target model.Status
    var event q.EventType
    switch in.Decision {
    case model.ApprovalApproved:
        target, event = model.StatusApproved, q.EventApproved
    case model.ApprovalRejected:
        target, event = model.StatusRejected, q.EventRejected
    default:
        return nil, model.Errorf(model.KindValidation, "decision must be approved or rejected, got %q", in.Decision)
    }

    now := s.now().UTC()
    comments := strings.TrimSpace(in.Comments)
    out, err := s.transition(ctx, in.ReservationID, func(agg *model.Aggregate) error {
        if agg.Approval == nil {
            return model.Errorf(model.KindNotFound, "approval record for reservation %s not found", in.ReservationID)
        }
        if !model.CanTransition(agg.Reservation.Status, target) {
            return model.Errorf(model.KindInvalidState, "reservation %s cannot be %s from %s", in.ReservationID, target, agg.Reservation.Status)
        }
        if err := agg.Approval.RecordDecision(in.Decision, in.ApproverID, comments, now); err != nil {
            return err
        }
        agg.Reservation.Status = target
        agg.Reservation.UpdatedAt = now
        return nil
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, event, out.Reservation, in.ApproverID)
    return out, nil
}

// StartUsage begins instrument use on an approved reservation.  Usage may
// start up to the early-start window before the scheduled start and not
// after the scheduled end.
func (s *ReservationService) StartUsage(ctx context.Context, id, callerID string) (*model.Aggregate, error) {
    now := s.now().UTC()
    out, err := s.transition(ctx, id, func(agg *model.Aggregate) error {
        if err := requireOwner(agg, callerID); err != nil {
            return err
        }
        r := agg.Reservation
        if r.Status != model.StatusApproved {
            return model.Errorf(model.KindInvalidState, "usage requires an approved reservation, status is %s", r.Status)
        }
        if now.Before(r.StartTime.Add(-s.earlyStart)) {
            return model.Errorf(model.KindInvalidState, "usage cannot start more than %s before the scheduled start", s.earlyStart)
        }
        if now.After(r.EndTime) {
            return model.Errorf(model.KindInvalidState, "scheduled window of reservation %s has ended", id)
        }
        if agg.Usage == nil {
            return model.Errorf(model.KindNotFound, "usage record for reservation %s not found", id)
        }
        if err := agg.Usage.Start(now); err != nil {
            return err
        }
        agg.Reservation.UpdatedAt = now
        return nil
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, q.EventUsageStarted, out.Reservation, callerID)
    return out, nil
}

// EndUsage closes the running session and completes the reservation.
func (s *ReservationService) EndUsage(ctx context.Context, id, callerID string, in model.EndUsageInput) (*model.Aggregate, error) {
    now := s.now().UTC()
    out, err := s.transition(ctx, id, func(agg *model.Aggregate) error {
        if err := requireOwner(agg, callerID); err != nil {
            return err
        }
        if agg.Reservation.Status != model.StatusApproved {
            return model.Errorf(model.KindInvalidState, "usage requires an approved reservation, status is %s", agg.Reservation.Status)
        }
        if agg.Usage == nil {
            return model.Errorf(model.KindNotFound, "usage record for reservation %s not found", id)
        }
        if err := agg.Usage.End(now, in); err != nil {
            return err
        }
        agg.Reservation.Status = model.StatusCompleted
        agg.Reservation.UpdatedAt = now
        return nil
    })
    if err != nil {
        return nil, err
    }

    s.publish(ctx, q.EventCompleted, out.Reservation, callerID)
    return out, nil
}

// Get returns one aggregate.  Only the owner and lab managers may read it.
func (s *ReservationService) Get(ctx context.Context, id string, caller Caller) (*model.Aggregate, error) {
    agg, err := s.store.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    if !caller.CanApprove && agg.Reservation.UserID != caller.UserID {
        return nil, model.Errorf(model.KindForbidden, "reservation %s belongs to another user", id)
    }
    return agg, nil
}

// List pages through reservations.  Callers without the lab-manager
// capability only ever see their own reservations.
func (s *ReservationService) List(ctx context.Context, caller Caller, f model.Filter) (model.Page, error) {
    if !caller.CanApprove {
        f.UserID = caller.UserID
    }
    if f.Status != "" && !f.Status.Valid() {
        return model.Page{}, model.Errorf(model.KindValidation, "unknown status %q", f.Status)
    }
    if f.StartDate != nil && f.EndDate != nil && !f.EndDate.After(*f.StartDate) {
        return model.Page{}, model.Errorf(model.KindValidation, "end_date must be after start_date")
    }
    return s.store.List(ctx, f.Normalize())
}

// FlagMissedUsage marks the usage record of every approved reservation
// whose window has elapsed without usage as error.  The reservation status
// is left alone.  It returns how many records were flagged; failures on
// individual reservations are logged and skipped.
func (s *ReservationService) FlagMissedUsage(ctx context.Context) (int, error) {
    now := s.now().UTC()
    ids, err := s.store.ListMissedUsage(ctx, now)
    if err != nil {
        return 0, err
    }
    flagged := 0
    for _, id := range ids {
        changed := false
        err := s.store.WithTx(ctx, func(tx repository.Tx) error {
            agg, err := tx.LoadForUpdate(ctx, id)
            if err != nil {
                return err
            }
            u := agg.Usage
            if agg.Reservation.Status != model.StatusApproved || u == nil ||
                u.Status != model.UsageNotStarted || !agg.Reservation.EndTime.Before(now) {
                return nil
            }
            u.Status = model.UsageError
            if u.Notes == "" {
                u.Notes = "no usage recorded during the scheduled window"
            }
            changed = true
            return tx.Save(ctx, agg)
        })
        if err != nil {
            s.log.Warnf("flag missed usage for %s: %v", id, err)
            continue
        }
        if changed {
            flagged++
        }
    }
    return flagged, nil
}

// transition loads id for update, applies fn and saves the result in one
// transaction.  It returns a copy of the saved aggregate.
func (s *ReservationService) transition(ctx context.Context, id string, fn func(agg *model.Aggregate) error) (*model.Aggregate, error) {
    var out *model.Aggregate
    err := s.store.WithTx(ctx, func(tx repository.Tx) error {
        agg, err := tx.LoadForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if err := fn(agg); err != nil {
            return err
        }
        if err := tx.Save(ctx, agg); err != nil {
            return err
        }
        out = agg
        return nil
    })
    if err != nil {
        return nil, err
    }
    return out.Clone(), nil
}

func (s *ReservationService) checkAvailable(ctx context.Context, equipmentID string) error {
    eq, err := s.catalog.GetEquipment(ctx, equipmentID)
    if err != nil {
        if model.KindOf(err) != "" {
            return err
        }
        return model.Wrap(model.KindUnavailable, "equipment catalog lookup failed", err)
    }
    if eq.Status != model.EquipmentAvailable {
        return model.Errorf(model.KindUnavailable, "equipment %s is %s", equipmentID, eq.Status)
    }
    return nil
}

// publish sends the event after commit.  A failure is logged only: the
// state change already happened and must stand.
func (s *ReservationService) publish(ctx context.Context, t q.EventType, r model.Reservation, actorID string) {
    if s.publisher == nil {
        return
    }
    ev := q.NewLifecycleEvent(t, r, actorID, s.now())
    pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
    defer cancel()
    if err := s.publisher.Publish(pctx, ev); err != nil {
        s.log.Warnf("publish %s for reservation %s: %v", t, r.ID, err)
    }
}

func checkOverlap(ctx context.Context, tx repository.Tx, r model.Reservation, excludeID string) error {
    overlap, err := tx.HasOverlap(ctx, r.EquipmentID, r.StartTime, r.EndTime, excludeID)
    if err != nil {
        return err
    }
    if overlap {
        return model.Errorf(model.KindConflict, "equipment %s is already reserved between %s and %s",
            r.EquipmentID, r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339))
    }
    return nil
}

func requireOwner(agg *model.Aggregate, callerID string) error {
    if agg.Reservation.UserID != callerID {
        return model.Errorf(model.KindForbidden, "reservation %s belongs to another user", agg.Reservation.ID)
    }
    return nil
}
