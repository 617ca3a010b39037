package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// ErrForbidden indicates the acting user may not perform the mutation.
var ErrForbidden = errors.New("operation not permitted for this user")

// Service manages user accounts and the visibility tree.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService constructs the Service.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// GetByLogin returns a user by login, matched case-insensitively.
func (s *Service) GetByLogin(ctx context.Context, login string) (*User, error) {
	return s.repo.GetByLogin(ctx, login)
}

// Role implements rbac.Directory.
func (s *Service) Role(ctx context.Context, userID int64) (string, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// FirstWeek returns the user's first reporting week, zero when unset.
// Implements weeks.FirstWeekSource.
func (s *Service) FirstWeek(ctx context.Context, userID int64) (time.Time, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return user.FirstWeekOrZero(), nil
}

// VisibleUsers lists the users the actor may see: admins see everyone,
// managers and user heads see themselves plus their subordinates, everyone
// else sees only themselves.
func (s *Service) VisibleUsers(ctx context.Context, actorID int64, req ListUsersRequest) ([]User, error) {
	actor, err := s.repo.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if actor.IsAdmin() {
		return s.repo.List(ctx, req)
	}

	team, err := s.repo.Subordinates(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := append([]User{*actor}, team...)
	return out, nil
}

// Create registers a new account. Admin only.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateUserRequest) (*User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if !ValidRole(req.Role) {
		return nil, fmt.Errorf("unknown role %q", req.Role)
	}

	existing, err := s.repo.GetByLogin(ctx, req.Login)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		Login:        req.Login,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		ManagerID:    req.ManagerID,
		UserHeadID:   req.UserHeadID,
		DepartmentID: req.DepartmentID,
	}
	if req.FirstWeek != nil {
		fw, err := weeks.ParseKey(*req.FirstWeek)
		if err != nil {
			return nil, fmt.Errorf("parse first week: %w", err)
		}
		fw = weeks.WeekStart(fw)
		user.FirstWeek = &fw
	}

	id, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.recordAudit(ctx, actorID, "user.create", id)
	return s.repo.Get(ctx, id)
}

// Update mutates an account. Admin only.
func (s *Service) Update(ctx context.Context, actorID, id int64, req UpdateUserRequest) (*User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Role != nil {
		if !ValidRole(*req.Role) {
			return nil, fmt.Errorf("unknown role %q", *req.Role)
		}
		updates["role"] = *req.Role
	}
	if req.ManagerID != nil {
		updates["manager_id"] = nullableID(*req.ManagerID)
	}
	if req.UserHeadID != nil {
		updates["user_head_id"] = nullableID(*req.UserHeadID)
	}
	if req.DepartmentID != nil {
		updates["department_id"] = nullableID(*req.DepartmentID)
	}
	if req.FirstWeek != nil {
		fw, err := weeks.ParseKey(*req.FirstWeek)
		if err != nil {
			return nil, fmt.Errorf("parse first week: %w", err)
		}
		updates["first_week"] = weeks.WeekStart(fw)
	}
	if req.Hidden != nil {
		updates["hidden"] = *req.Hidden
	}

	if len(updates) == 0 {
		return s.repo.Get(ctx, id)
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.recordAudit(ctx, actorID, "user.update", id)
	return s.repo.Get(ctx, id)
}

// Hide soft-hides an account; users are never hard-deleted.
func (s *Service) Hide(ctx context.Context, actorID, id int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, map[string]interface{}{"hidden": true}); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "user.hide", id)
	return nil
}

// IsApproverFor reports whether actor may approve submissions of user:
// the designated user head, or any admin.
func (s *Service) IsApproverFor(ctx context.Context, actor *User, user *User) bool {
	if actor == nil || user == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return user.UserHeadID != nil && *user.UserHeadID == actor.ID
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.repo.Get(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", id),
		At:       time.Now(),
	})
}

func nullableID(id int64) interface{} {
	if id <= 0 {
		return nil
	}
	return id
}
