package users

import "time"

// Roles assigned to users. The role is immutable within a session; changes
// apply on next login.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// User describes an account able to log weekly hours.
//
// ManagerID and UserHeadID form trees used for visibility filtering and
// approval routing respectively; neither tree is enforced acyclic.
type User struct {
	ID           int64      `json:"id"`
	Login        string     `json:"login"`
	Name         string     `json:"name"`
	Email        *string    `json:"email,omitempty"`
	Role         string     `json:"role"`
	ManagerID    *int64     `json:"manager_id,omitempty"`
	UserHeadID   *int64     `json:"user_head_id,omitempty"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	FirstWeek    *time.Time `json:"first_week,omitempty"`
	Hidden       bool       `json:"hidden"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FirstWeekOrZero returns the first working week or the zero time when unset.
func (u User) FirstWeekOrZero() time.Time {
	if u.FirstWeek == nil {
		return time.Time{}
	}
	return *u.FirstWeek
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}
