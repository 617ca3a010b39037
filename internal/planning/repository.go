package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

// ActualHours is one user's realized hours for a client in one month,
// aggregated from the timesheet.
type ActualHours struct {
	UserID   int64
	ClientID int64
	Month    int
	Hours    float64
}

// Repository provides access to planning versions, allocations, per-user
// version statuses, and fill runs.
type Repository interface {
	Get(ctx context.Context, id int64) (*Version, error)
	List(ctx context.Context, year int) ([]Version, error)
	Create(ctx context.Context, version Version) (int64, error)
	Rename(ctx context.Context, id int64, name string) error
	UpdateLocks(ctx context.Context, id int64, q1, q2, q3, q4 bool) error
	Delete(ctx context.Context, id int64) error

	Allocations(ctx context.Context, versionID, userID int64) ([]Allocation, error)
	UpsertAllocation(ctx context.Context, alloc Allocation) error

	StatusID(ctx context.Context, name string) (int64, error)
	UserStatus(ctx context.Context, versionID, userID int64) (*VersionStatus, error)
	UpsertUserStatus(ctx context.Context, versionID, userID, statusID int64) error
	VersionsForApproval(ctx context.Context, headID int64) ([]VersionStatus, error)
	VersionUserIDs(ctx context.Context, versionID int64) ([]int64, error)

	CreateFillRun(ctx context.Context, run FillRun) error
	GetFillRun(ctx context.Context, id string) (*FillRun, error)
	FinishFillRun(ctx context.Context, id, status string, quarters map[string]string) error

	ActualMonthlyHours(ctx context.Context, userID int64, year int, months []int) ([]ActualHours, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const versionColumns = `id, name, year, q1_locked, q2_locked, q3_locked, q4_locked, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Version, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM planning_versions WHERE id = $1`, id)
	return scanVersion(row)
}

func (r *repository) List(ctx context.Context, year int) ([]Version, error) {
	query := `SELECT ` + versionColumns + ` FROM planning_versions`
	var args []interface{}
	if year != 0 {
		query += ` WHERE year = $1`
		args = append(args, year)
	}
	query += ` ORDER BY year DESC, name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, version Version) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO planning_versions (name, year, q1_locked, q2_locked, q3_locked, q4_locked, created_at, updated_at)
		VALUES ($1, $2, false, false, false, false, NOW(), NOW())
		RETURNING id
	`, version.Name, version.Year).Scan(&id)
	return id, err
}

func (r *repository) Rename(ctx context.Context, id int64, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE planning_versions SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateLocks(ctx context.Context, id int64, q1, q2, q3, q4 bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE planning_versions
		SET q1_locked = $1, q2_locked = $2, q3_locked = $3, q4_locked = $4, updated_at = NOW()
		WHERE id = $5
	`, q1, q2, q3, q4, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM planning_versions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Allocations(ctx context.Context, versionID, userID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT version_id, user_id, client_id, month, hours
		FROM planning_allocations
		WHERE version_id = $1 AND user_id = $2
		ORDER BY client_id, month
	`, versionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.VersionID, &a.UserID, &a.ClientID, &a.Month, &a.Hours); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) UpsertAllocation(ctx context.Context, alloc Allocation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO planning_allocations (version_id, user_id, client_id, month, hours, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (version_id, user_id, client_id, month)
		DO UPDATE SET hours = EXCLUDED.hours, updated_at = NOW()
	`, alloc.VersionID, alloc.UserID, alloc.ClientID, alloc.Month, alloc.Hours)
	return err
}

func (r *repository) StatusID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM week_statuses WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UserStatus(ctx context.Context, versionID, userID int64) (*VersionStatus, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.version_id, s.user_id, ws.name, s.updated_at
		FROM planning_version_statuses s
		JOIN week_statuses ws ON ws.id = s.status_id
		WHERE s.version_id = $1 AND s.user_id = $2
	`, versionID, userID)
	vs, err := scanVersionStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return vs, nil
}

func (r *repository) UpsertUserStatus(ctx context.Context, versionID, userID, statusID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO planning_version_statuses (version_id, user_id, status_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (version_id, user_id)
		DO UPDATE SET status_id = EXCLUDED.status_id, updated_at = NOW()
	`, versionID, userID, statusID)
	return err
}

func (r *repository) VersionsForApproval(ctx context.Context, headID int64) ([]VersionStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.version_id, s.user_id, ws.name, s.updated_at
		FROM planning_version_statuses s
		JOIN week_statuses ws ON ws.id = s.status_id
		JOIN users u ON u.id = s.user_id
		WHERE u.user_head_id = $1 AND ws.name = 'under review'
		ORDER BY s.updated_at
	`, headID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VersionStatus
	for rows.Next() {
		vs, err := scanVersionStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *vs)
	}
	return out, rows.Err()
}

func (r *repository) VersionUserIDs(ctx context.Context, versionID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM planning_allocations WHERE version_id = $1
		UNION
		SELECT DISTINCT user_id FROM planning_version_statuses WHERE version_id = $1
	`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repository) CreateFillRun(ctx context.Context, run FillRun) error {
	quarters, err := json.Marshal(run.Quarters)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO planning_fill_runs (id, version_id, requested_by, status, quarters, requested_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, run.ID, run.VersionID, run.RequestedBy, run.Status, quarters)
	return err
}

func (r *repository) GetFillRun(ctx context.Context, id string) (*FillRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, version_id, requested_by, status, quarters, requested_at, finished_at
		FROM planning_fill_runs WHERE id = $1
	`, id)

	var run FillRun
	var quarters []byte
	var finishedAt pgtype.Timestamptz
	err := row.Scan(&run.ID, &run.VersionID, &run.RequestedBy, &run.Status, &quarters, &run.RequestedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if len(quarters) > 0 {
		if err := json.Unmarshal(quarters, &run.Quarters); err != nil {
			return nil, err
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (r *repository) FinishFillRun(ctx context.Context, id, status string, quarters map[string]string) error {
	data, err := json.Marshal(quarters)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE planning_fill_runs
		SET status = $1, quarters = $2, finished_at = NOW()
		WHERE id = $3
	`, status, data, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *repository) ActualMonthlyHours(ctx context.Context, userID int64, year int, months []int) ([]ActualHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT client_id, EXTRACT(MONTH FROM week_key)::int AS month, SUM(hours)
		FROM time_entries
		WHERE user_id = $1
		  AND EXTRACT(YEAR FROM week_key)::int = $2
		  AND EXTRACT(MONTH FROM week_key)::int = ANY($3)
		GROUP BY client_id, month
		ORDER BY client_id, month
	`, userID, year, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActualHours
	for rows.Next() {
		a := ActualHours{UserID: userID}
		if err := rows.Scan(&a.ClientID, &a.Month, &a.Hours); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanVersion(row pgx.Row) (*Version, error) {
	var v Version
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&v.ID, &v.Name, &v.Year, &v.Q1Locked, &v.Q2Locked, &v.Q3Locked, &v.Q4Locked, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

func scanVersionStatus(row pgx.Row) (*VersionStatus, error) {
	var vs VersionStatus
	var name string
	var updatedAt pgtype.Timestamptz

	if err := row.Scan(&vs.VersionID, &vs.UserID, &name, &updatedAt); err != nil {
		return nil, err
	}
	status, err := shared.StatusFromName(name)
	if err != nil {
		return nil, err
	}
	vs.Status = status
	if updatedAt.Valid {
		vs.UpdatedAt = updatedAt.Time
	}
	return &vs, nil
}
