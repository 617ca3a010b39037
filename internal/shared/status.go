package shared

import (
	"errors"
	"fmt"
)

// Review statuses shared by weekly timesheets and planning versions.
const (
	StatusUnconfirmed   Status = "unconfirmed"
	StatusUnderReview   Status = "under-review"
	StatusAccepted      Status = "accepted"
	StatusNeedsRevision Status = "needs-revision"
)

// Status is a lifecycle state on the review state machine.
type Status string

// ErrInvalidStatusTransition indicates a status change not allowed.
var ErrInvalidStatusTransition = errors.New("status transition invalid")

// ErrUnknownStatusName indicates a status with no stored name mapping.
var ErrUnknownStatusName = errors.New("status name has no id mapping")

// Stored status rows keep human-readable names with spaces; the API uses the
// hyphenated form. The two mappings below must stay exact inverses.
var statusNames = map[Status]string{
	StatusUnconfirmed:   "unconfirmed",
	StatusUnderReview:   "under review",
	StatusAccepted:      "accepted",
	StatusNeedsRevision: "needs revision",
}

var statusesByName = func() map[string]Status {
	m := make(map[string]Status, len(statusNames))
	for status, name := range statusNames {
		m[name] = status
	}
	return m
}()

// StatusName returns the stored name for a status.
func StatusName(status Status) (string, error) {
	name, ok := statusNames[status]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatusName, status)
	}
	return name, nil
}

// StatusFromName returns the status for a stored name.
func StatusFromName(name string) (Status, error) {
	status, ok := statusesByName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatusName, name)
	}
	return status, nil
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnconfirmed, StatusUnderReview, StatusAccepted, StatusNeedsRevision:
		return true
	}
	return false
}

// Submitted reports whether the record is no longer freely editable by its owner.
func (s Status) Submitted() bool {
	return s == StatusUnderReview || s == StatusAccepted
}

// ValidateStatusTransition checks a requested move on the review state machine.
// byApprover marks actions taken by the designated approver (user head or admin);
// only approvers may resolve an under-review record.
func ValidateStatusTransition(current, target Status, byApprover bool) error {
	if !current.Valid() || !target.Valid() {
		return ErrInvalidStatusTransition
	}
	switch target {
	case StatusUnderReview:
		if current == StatusUnconfirmed || current == StatusNeedsRevision {
			return nil
		}
	case StatusAccepted, StatusNeedsRevision:
		if current == StatusUnderReview && byApprover {
			return nil
		}
	}
	return ErrInvalidStatusTransition
}
