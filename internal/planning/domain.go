package planning

import (
	"errors"
	"time"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

var (
	ErrNotFound        = errors.New("planning version not found")
	ErrNameRequired    = errors.New("planning version name is required")
	ErrYearRequired    = errors.New("planning version year is required")
	ErrQuarterLocked   = errors.New("quarter is locked for edits")
	ErrInvalidMonth    = errors.New("month must be between 1 and 12")
	ErrNegativeHours   = errors.New("hours must be non-negative")
	ErrForbidden       = errors.New("operation not permitted for this user")
	ErrFillInFlight    = errors.New("fill actuals already requested for this version today")
	ErrNoLockedQuarter = errors.New("no quarter is locked on this version")
	ErrRunNotFound     = errors.New("fill run not found")
)

// Version is a named planning scenario for one year. Each quarter can be
// locked independently; a locked quarter freezes its months' allocations and
// becomes eligible for back-filling with actual hours.
type Version struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	Q1Locked  bool      `json:"q1_locked"`
	Q2Locked  bool      `json:"q2_locked"`
	Q3Locked  bool      `json:"q3_locked"`
	Q4Locked  bool      `json:"q4_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuarterLocked reports whether the quarter (1..4) is locked.
func (v Version) QuarterLocked(quarter int) bool {
	switch quarter {
	case 1:
		return v.Q1Locked
	case 2:
		return v.Q2Locked
	case 3:
		return v.Q3Locked
	case 4:
		return v.Q4Locked
	}
	return false
}

// LockedQuarters lists the locked quarters in order.
func (v Version) LockedQuarters() []int {
	var out []int
	for q := 1; q <= 4; q++ {
		if v.QuarterLocked(q) {
			out = append(out, q)
		}
	}
	return out
}

// QuarterOfMonth maps a month (1..12) to its quarter (1..4).
func QuarterOfMonth(month int) int {
	return (month-1)/3 + 1
}

// Allocation is one user's planned hours for a client in one month of a
// version's year.
type Allocation struct {
	VersionID int64   `json:"version_id"`
	UserID    int64   `json:"user_id"`
	ClientID  int64   `json:"client_id"`
	Month     int     `json:"month"`
	Hours     float64 `json:"hours"`
}

// VersionStatus is one user's review state on a version.
type VersionStatus struct {
	VersionID int64         `json:"version_id"`
	UserID    int64         `json:"user_id"`
	Status    shared.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Fill run outcomes per quarter.
const (
	FillOutcomeFilled  = "filled"
	FillOutcomeSkipped = "skipped"
	FillOutcomeFailed  = "failed"
)

// FillRun records one fill-actuals request and its per-quarter outcomes, so
// callers can tell exactly which quarters were filled rather than a single
// all-or-nothing flag.
type FillRun struct {
	ID          string            `json:"id"`
	VersionID   int64             `json:"version_id"`
	RequestedBy int64             `json:"requested_by"`
	Status      string            `json:"status"`
	Quarters    map[string]string `json:"quarters"`
	RequestedAt time.Time         `json:"requested_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// Fill run statuses.
const (
	FillRunPending = "pending"
	FillRunDone    = "done"
	FillRunFailed  = "failed"
)
