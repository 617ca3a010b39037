package weeks

import (
	"errors"
	"time"
)

// DefaultRequiredHours applies to default Monday-grid weeks without a
// configured custom week.
const DefaultRequiredHours = 40.0

// ErrNoWeek marks a date no reporting week covers. Entries for such dates are
// not persistable.
var ErrNoWeek = errors.New("no reporting week covers this date")

// CustomWeek is an explicitly configured reporting period with its own
// required-hours target. Ranges are not validated against each other and may
// overlap or gap.
type CustomWeek struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PeriodFrom    time.Time `json:"period_from"`
	PeriodTo      time.Time `json:"period_to"`
	RequiredHours float64   `json:"required_hours"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Week is a resolved reporting week for a specific date.
type Week struct {
	Key           string    `json:"key"`
	Name          string    `json:"name"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	RequiredHours float64   `json:"required_hours"`
	Custom        bool      `json:"custom"`
	CustomID      int64     `json:"custom_id,omitempty"`
}
