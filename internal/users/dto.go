package users

type CreateUserRequest struct {
	Login        string  `json:"login" validate:"required,max=100"`
	Name         string  `json:"name" validate:"required,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Password     string  `json:"password" validate:"required,min=8"`
	Role         string  `json:"role" validate:"required,oneof=admin manager user"`
	ManagerID    *int64  `json:"manager_id,omitempty" validate:"omitempty,gt=0"`
	UserHeadID   *int64  `json:"user_head_id,omitempty" validate:"omitempty,gt=0"`
	DepartmentID *int64  `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	FirstWeek    *string `json:"first_week,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateUserRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Role         *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager user"`
	ManagerID    *int64  `json:"manager_id,omitempty"`
	UserHeadID   *int64  `json:"user_head_id,omitempty"`
	DepartmentID *int64  `json:"department_id,omitempty"`
	FirstWeek    *string `json:"first_week,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Hidden       *bool   `json:"hidden,omitempty"`
}

type ListUsersRequest struct {
	IncludeHidden bool
	Search        string
}
