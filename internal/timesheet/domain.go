package timesheet

import (
	"errors"
	"time"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

var (
	ErrHoursCapExceeded = errors.New("week hour total would exceed required hours")
	ErrWeekSubmitted    = errors.New("week is submitted and no longer editable")
	ErrNegativeHours    = errors.New("hours must be non-negative")
	ErrForbidden        = errors.New("operation not permitted for this user")
)

// WeekStatus is the per (user, week) ledger row. WeekKey is the normalized
// Monday start of the week in "2006-01-02" form.
type WeekStatus struct {
	UserID    int64         `json:"user_id"`
	WeekKey   string        `json:"week_key"`
	Status    shared.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// EntryCell is one (client, media type) cell of a week.
type EntryCell struct {
	Hours  float64       `json:"hours"`
	Status shared.Status `json:"status"`
}

// WeekEntries maps client id to media type id to cell. A non-nil empty map
// means the week resolved but holds no entries; callers distinguish that from
// an unresolvable week, which yields no map at all.
type WeekEntries map[int64]map[int64]EntryCell

// Total sums hours across every cell.
func (we WeekEntries) Total() float64 {
	var total float64
	for _, byType := range we {
		for _, cell := range byType {
			total += cell.Hours
		}
	}
	return total
}

// WithStatus returns a copy of the entries with status stamped on every cell.
// The receiver may be shared with the entry cache and is never mutated.
func (we WeekEntries) WithStatus(status shared.Status) WeekEntries {
	if we == nil {
		return nil
	}
	out := make(WeekEntries, len(we))
	for clientID, byType := range we {
		cells := make(map[int64]EntryCell, len(byType))
		for mediaTypeID, cell := range byType {
			cell.Status = status
			cells[mediaTypeID] = cell
		}
		out[clientID] = cells
	}
	return out
}

// WeekPercentage is a client's share of a week's booked hours.
type WeekPercentage struct {
	ClientID int64   `json:"client_id"`
	Percent  float64 `json:"percent"`
}
