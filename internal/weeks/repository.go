package weeks

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing custom week record.
var ErrNotFound = errors.New("custom week not found")

// Repository provides access to configured custom weeks.
type Repository interface {
	List(ctx context.Context) ([]CustomWeek, error)
	Get(ctx context.Context, id int64) (*CustomWeek, error)
	Create(ctx context.Context, week CustomWeek) (int64, error)
	Update(ctx context.Context, id int64, week CustomWeek) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]CustomWeek, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, period_from, period_to, required_hours, created_at, updated_at
		FROM custom_weeks
		ORDER BY period_from
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomWeek
	for rows.Next() {
		cw, err := scanCustomWeek(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cw)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*CustomWeek, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, period_from, period_to, required_hours, created_at, updated_at
		FROM custom_weeks WHERE id = $1
	`, id)
	cw, err := scanCustomWeek(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cw, nil
}

func (r *repository) Create(ctx context.Context, week CustomWeek) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO custom_weeks (name, period_from, period_to, required_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, week.Name, week.PeriodFrom, week.PeriodTo, week.RequiredHours).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, week CustomWeek) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE custom_weeks
		SET name = $2, period_from = $3, period_to = $4, required_hours = $5, updated_at = NOW()
		WHERE id = $1
	`, id, week.Name, week.PeriodFrom, week.PeriodTo, week.RequiredHours)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM custom_weeks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomWeek(row rowScanner) (CustomWeek, error) {
	var cw CustomWeek
	var from, to pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&cw.ID, &cw.Name, &from, &to, &cw.RequiredHours, &createdAt, &updatedAt); err != nil {
		return CustomWeek{}, err
	}
	if from.Valid {
		cw.PeriodFrom = from.Time.UTC()
	}
	if to.Valid {
		cw.PeriodTo = to.Time.UTC()
	}
	if createdAt.Valid {
		cw.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		cw.UpdatedAt = updatedAt.Time
	}
	cw.PeriodFrom = normalizeDay(cw.PeriodFrom)
	cw.PeriodTo = normalizeDay(cw.PeriodTo)
	return cw, nil
}

func normalizeDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
