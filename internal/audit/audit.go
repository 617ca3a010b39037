// Package audit exposes the read side of the audit trail written by
// shared.AuditLogger.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrForbidden marks a caller without audit access.
var ErrForbidden = errors.New("audit access requires the admin role")

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded admin mutation or approval action.
type Entry struct {
	ID       int64          `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Filter narrows a trail listing. Zero values mean no constraint.
type Filter struct {
	ActorID int64
	Entity  string
	Action  string
	Since   time.Time
	Limit   int
}

// Repository reads audit entries.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1 = 0 OR actor_id = $1)
		  AND ($2 = '' OR entity = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4::timestamptz IS NULL OR occurred_at >= $4)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $5
	`
	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}
	rows, err := r.pool.Query(ctx, query, filter.ActorID, filter.Entity, filter.Action, since, normalizeLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta, &e.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode meta for entry %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// RoleChecker resolves the caller's role.
type RoleChecker interface {
	Role(ctx context.Context, userID int64) (string, error)
}

// Service guards trail listings behind the admin role.
type Service struct {
	repo  Repository
	roles RoleChecker
}

// NewService constructs a Service instance.
func NewService(repo Repository, roles RoleChecker) *Service {
	return &Service{repo: repo, roles: roles}
}

// List returns the filtered trail for an admin caller.
func (s *Service) List(ctx context.Context, actorID int64, filter Filter) ([]Entry, error) {
	role, err := s.roles.Role(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if role != "admin" {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, filter)
}
