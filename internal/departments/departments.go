package departments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

var (
	ErrNotFound      = errors.New("department not found")
	ErrDuplicateName = errors.New("department name already in use")
	ErrNameRequired  = errors.New("department name is required")
	ErrForbidden     = errors.New("operation not permitted for this user")
)

// Department groups users for reporting purposes.
type Department struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository provides access to departments.
type Repository interface {
	Get(ctx context.Context, id int64) (*Department, error)
	GetByName(ctx context.Context, name string) (*Department, error)
	List(ctx context.Context) ([]Department, error)
	Create(ctx context.Context, name string) (int64, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM departments WHERE id = $1`, id)
	return scanDepartment(row)
}

func (r *repository) GetByName(ctx context.Context, name string) (*Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM departments WHERE lower(name) = lower($1)`, name)
	return scanDepartment(row)
}

func (r *repository) List(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO departments (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Rename(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE departments SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&d.ID, &d.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// RoleChecker reports whether a user holds the admin role.
type RoleChecker interface {
	Role(ctx context.Context, userID int64) (string, error)
}

// Service manages departments.
type Service struct {
	repo  Repository
	roles RoleChecker
	audit *shared.AuditLogger
}

// NewService constructs the Service.
func NewService(repo Repository, roles RoleChecker, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit}
}

func (s *Service) Get(ctx context.Context, id int64) (*Department, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Department, error) {
	return s.repo.List(ctx)
}

func (s *Service) Create(ctx context.Context, actorID int64, name string) (*Department, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if existing, err := s.repo.GetByName(ctx, name); err == nil && existing != nil {
		return nil, ErrDuplicateName
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check department name: %w", err)
	}

	id, err := s.repo.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}
	s.recordAudit(ctx, actorID, "department.create", id)
	return s.repo.Get(ctx, id)
}

func (s *Service) Rename(ctx context.Context, actorID, id int64, name string) (*Department, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if existing, err := s.repo.GetByName(ctx, name); err == nil && existing.ID != id {
		return nil, ErrDuplicateName
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check department name: %w", err)
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "department.rename", id)
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "department.delete", id)
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	role, err := s.roles.Role(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor role: %w", err)
	}
	if role != "admin" {
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
		Entity:   "department",
		EntityID: fmt.Sprintf("%d", id),
		At:       time.Now(),
	})
}
