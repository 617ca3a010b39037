package mediatypes

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
	ErrNotFound      = errors.New("media type not found")
	ErrDuplicateName = errors.New("media type name already in use")
	ErrNameRequired  = errors.New("media type name is required")
	ErrForbidden     = errors.New("operation not permitted for this user")
)

// MediaType is a category hours are booked under, such as TV or Digital.
type MediaType struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleMediaType is a media type in a user's ordered visible list.
type VisibleMediaType struct {
	MediaTypeID  int64  `json:"media_type_id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

// Repository provides access to media types and per-user visible lists.
type Repository interface {
	Get(ctx context.Context, id int64) (*MediaType, error)
	GetByName(ctx context.Context, name string) (*MediaType, error)
	List(ctx context.Context, includeHidden bool) ([]MediaType, error)
	Create(ctx context.Context, name string) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, id int64) error

	VisibleForUser(ctx context.Context, userID int64) ([]VisibleMediaType, error)
	SetVisibleForUser(ctx context.Context, userID int64, typeIDs []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const typeColumns = `id, name, hidden, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*MediaType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM media_types WHERE id = $1`, id)
	return scanMediaType(row)
}

func (r *repository) GetByName(ctx context.Context, name string) (*MediaType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM media_types WHERE lower(name) = lower($1)`, name)
	return scanMediaType(row)
}

func (r *repository) List(ctx context.Context, includeHidden bool) ([]MediaType, error) {
	query := `SELECT ` + typeColumns + ` FROM media_types`
	if !includeHidden {
		query += ` WHERE hidden = false`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MediaType
	for rows.Next() {
		mt, err := scanMediaType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *mt)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO media_types (name, hidden, created_at, updated_at)
		VALUES ($1, false, NOW(), NOW())
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

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE media_types SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "hidden"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, query, args...)
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_types WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) VisibleForUser(ctx context.Context, userID int64) ([]VisibleMediaType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.media_type_id, t.name, v.display_order
		FROM user_visible_media_types v
		JOIN media_types t ON t.id = v.media_type_id
		WHERE v.user_id = $1
		ORDER BY v.display_order
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VisibleMediaType
	for rows.Next() {
		var v VisibleMediaType
		if err := rows.Scan(&v.MediaTypeID, &v.Name, &v.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) SetVisibleForUser(ctx context.Context, userID int64, typeIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_visible_media_types WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for order, typeID := range typeIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_visible_media_types (user_id, media_type_id, display_order)
			VALUES ($1, $2, $3)
		`, userID, typeID, order)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func scanMediaType(row pgx.Row) (*MediaType, error) {
	var mt MediaType
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&mt.ID, &mt.Name, &mt.Hidden, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if createdAt.Valid {
		mt.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		mt.UpdatedAt = updatedAt.Time
	}
	return &mt, nil
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

// Service manages media types and per-user visible lists.
type Service struct {
	repo  Repository
	roles RoleChecker
	audit *shared.AuditLogger
}

// NewService constructs the Service.
func NewService(repo Repository, roles RoleChecker, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit}
}

func (s *Service) Get(ctx context.Context, id int64) (*MediaType, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, includeHidden bool) ([]MediaType, error) {
	return s.repo.List(ctx, includeHidden)
}

func (s *Service) Create(ctx context.Context, actorID int64, name string) (*MediaType, error) {
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
		return nil, fmt.Errorf("check media type name: %w", err)
	}

	id, err := s.repo.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create media type: %w", err)
	}
	s.recordAudit(ctx, actorID, "mediatype.create", id)
	return s.repo.Get(ctx, id)
}

func (s *Service) Rename(ctx context.Context, actorID, id int64, name string) (*MediaType, error) {
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
		return nil, fmt.Errorf("check media type name: %w", err)
	}
	if err := s.repo.Update(ctx, id, map[string]interface{}{"name": name}); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "mediatype.rename", id)
	return s.repo.Get(ctx, id)
}

func (s *Service) SetHidden(ctx context.Context, actorID, id int64, hidden bool) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, map[string]interface{}{"hidden": hidden}); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "mediatype.hide", id)
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "mediatype.delete", id)
	return nil
}

func (s *Service) VisibleForUser(ctx context.Context, userID int64) ([]VisibleMediaType, error) {
	return s.repo.VisibleForUser(ctx, userID)
}

func (s *Service) SetVisibleForUser(ctx context.Context, actorID, userID int64, typeIDs []int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	for _, typeID := range typeIDs {
		if _, err := s.repo.Get(ctx, typeID); err != nil {
			return err
		}
	}
	if err := s.repo.SetVisibleForUser(ctx, userID, typeIDs); err != nil {
		return fmt.Errorf("set visible media types: %w", err)
	}
	s.recordAudit(ctx, actorID, "mediatype.visibility", userID)
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
		Entity:   "media_type",
		EntityID: fmt.Sprintf("%d", id),
		At:       time.Now(),
	})
}
