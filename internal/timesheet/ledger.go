package timesheet

import (
	"time"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// Ledger is a user's week-status mapping plus the derived submitted set.
type Ledger struct {
	Statuses       map[string]shared.Status `json:"statuses"`
	SubmittedWeeks []string                 `json:"submitted_weeks"`
}

// BuildLedger classifies statuses and collects submitted week keys. The
// input slice is expected in chronological order; the derived list keeps it.
func BuildLedger(rows []WeekStatus) Ledger {
	ledger := Ledger{
		Statuses:       make(map[string]shared.Status, len(rows)),
		SubmittedWeeks: []string{},
	}
	for _, row := range rows {
		ledger.Statuses[row.WeekKey] = row.Status
		if row.Status.Submitted() {
			ledger.SubmittedWeeks = append(ledger.SubmittedWeeks, row.WeekKey)
		}
	}
	return ledger
}

// Status returns the status for a week key, defaulting to unconfirmed.
func (l Ledger) Status(weekKey string) shared.Status {
	if status, ok := l.Statuses[weekKey]; ok {
		return status
	}
	return shared.StatusUnconfirmed
}

// FirstUnsubmittedWeek walks the Monday grid from firstWeek through the week
// containing now, returning the start of the earliest week whose key is not
// in submitted. Returns the zero time when every week through the current one
// is submitted, or when firstWeek is after now.
func FirstUnsubmittedWeek(firstWeek, now time.Time, submitted []string) time.Time {
	if firstWeek.IsZero() {
		return time.Time{}
	}
	submittedSet := make(map[string]bool, len(submitted))
	for _, key := range submitted {
		submittedSet[key] = true
	}

	cur := weeks.WeekStart(firstWeek)
	last := weeks.WeekStart(now)
	for !cur.After(last) {
		if !submittedSet[weeks.Key(cur)] {
			return cur
		}
		cur = weeks.NextWeek(cur)
	}
	return time.Time{}
}
