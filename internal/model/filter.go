package model

import "time"

const (
    DefaultPageLimit = 10
    MaxPageLimit     = 100
)

// Filter selects reservations for listing.  Zero values mean "no
// constraint".  StartDate/EndDate select reservations whose window
// intersects [StartDate, EndDate).
type Filter struct {
    UserID      string
    EquipmentID string
    Status      Status
    StartDate   *time.Time
    EndDate     *time.Time
    Page        int
    Limit       int
}

// Normalize clamps paging to sane bounds.
func (f Filter) Normalize() Filter {
    if f.Page < 1 {
        f.Page = 1
    }
    if f.Limit < 1 {
        f.Limit = DefaultPageLimit
    }
    if f.Limit > MaxPageLimit {
        f.Limit = MaxPageLimit
    }
    return f
}

// Offset returns the row offset of the current page.
func (f Filter) Offset() int { return (f.Page - 1) * f.Limit }

// Page is one page of listed reservations.
type Page struct {
    Items []Reservation `json:"items"`
    Total int           `json:"total"`
    Page  int           `json:"page"`
    Limit int           `json:"limit"`
    Pages int           `json:"pages"`
}

// NewPage builds a Page and derives the page count from total and limit.
func NewPage(items []Reservation, total int, f Filter) Page {
    if items == nil {
        items = []Reservation{}
    }
    pages := 0
    if f.Limit > 0 {
        pages = (total + f.Limit - 1) / f.Limit
    }
    return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit, Pages: pages}
}

// Matches reports whether r satisfies every constraint of the filter.
func (f Filter) Matches(r Reservation) bool {
    if f.UserID != "" && r.UserID != f.UserID {
        return false
    }
    if f.EquipmentID != "" && r.EquipmentID != f.EquipmentID {
        return false
    }
    if f.Status != "" && r.Status != f.Status {
        return false
    }
    if f.StartDate != nil && !r.EndTime.After(*f.StartDate) {
        return false
    }
    if f.EndDate != nil && !r.StartTime.Before(*f.EndDate) {
        return false
    }
    return true
}
