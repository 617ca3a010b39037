package shared

import "fmt"

// PlanningFillLockKey builds redis keys guarding fill-actuals critical sections.
func PlanningFillLockKey(versionID int64) string {
	return fmt.Sprintf("planning:version:%d:fill-lock", versionID)
}
