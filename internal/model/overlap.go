package model

import "time"

// Overlaps reports whether the half-open windows [aStart, aEnd) and
// [bStart, bEnd) share any instant.  Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
    return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HasOverlap reports whether [start, end) on equipmentID conflicts with any
// blocking reservation in existing.  The reservation with ID excludeID is
// ignored so an update can be checked against everything but itself.
func HasOverlap(existing []Reservation, equipmentID string, start, end time.Time, excludeID string) bool {
    for _, r := range existing {
        if r.EquipmentID != equipmentID || !r.Status.Blocking() {
            continue
        }
        if excludeID != "" && r.ID == excludeID {
            continue
        }
        if Overlaps(r.StartTime, r.EndTime, start, end) {
            return true
        }
    }
    return false
}
