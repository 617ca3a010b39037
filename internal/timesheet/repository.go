package timesheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// Repository provides access to the week status ledger and hour entries.
// WithTx runs fn against a repeatable-read transaction so that cap checks
// and the subsequent upsert observe a consistent week total.
type Repository interface {
	StatusID(ctx context.Context, name string) (int64, error)
	Statuses(ctx context.Context, userID int64, chronological bool) ([]WeekStatus, error)
	Status(ctx context.Context, userID int64, weekKey string) (*WeekStatus, error)
	UpsertWeekStatus(ctx context.Context, userID int64, weekKey string, statusID int64) error

	WeekEntries(ctx context.Context, userID int64, weekKey string) (WeekEntries, error)
	CellHours(ctx context.Context, userID int64, weekKey string, clientID, mediaTypeID int64) (float64, error)
	WeekTotal(ctx context.Context, userID int64, weekKey string) (float64, error)
	UpsertHours(ctx context.Context, userID int64, weekKey string, clientID, mediaTypeID int64, hours float64) error
	WeekPercentages(ctx context.Context, userID int64, weekKey string) ([]WeekPercentage, error)

	WithTx(ctx context.Context, fn func(Repository) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, q: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&repository{pool: r.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) StatusID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT id FROM week_statuses WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Statuses(ctx context.Context, userID int64, chronological bool) ([]WeekStatus, error) {
	query := `
		SELECT s.user_id, s.week_key, ws.name, s.updated_at
		FROM user_week_statuses s
		JOIN week_statuses ws ON ws.id = s.status_id
		WHERE s.user_id = $1`
	if chronological {
		query += ` ORDER BY s.week_key`
	}

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeekStatus
	for rows.Next() {
		ws, err := scanWeekStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

func (r *repository) Status(ctx context.Context, userID int64, weekKey string) (*WeekStatus, error) {
	row := r.q.QueryRow(ctx, `
		SELECT s.user_id, s.week_key, ws.name, s.updated_at
		FROM user_week_statuses s
		JOIN week_statuses ws ON ws.id = s.status_id
		WHERE s.user_id = $1 AND s.week_key = $2
	`, userID, weekKey)
	ws, err := scanWeekStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ws, nil
}

func (r *repository) UpsertWeekStatus(ctx context.Context, userID int64, weekKey string, statusID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_week_statuses (user_id, week_key, status_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, week_key)
		DO UPDATE SET status_id = EXCLUDED.status_id, updated_at = NOW()
	`, userID, weekKey, statusID)
	return err
}

func (r *repository) WeekEntries(ctx context.Context, userID int64, weekKey string) (WeekEntries, error) {
	rows, err := r.q.Query(ctx, `
		SELECT client_id, media_type_id, hours
		FROM time_entries
		WHERE user_id = $1 AND week_key = $2
	`, userID, weekKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(WeekEntries)
	for rows.Next() {
		var clientID, mediaTypeID int64
		var hours float64
		if err := rows.Scan(&clientID, &mediaTypeID, &hours); err != nil {
			return nil, err
		}
		if entries[clientID] == nil {
			entries[clientID] = make(map[int64]EntryCell)
		}
		entries[clientID][mediaTypeID] = EntryCell{Hours: hours}
	}
	return entries, rows.Err()
}

func (r *repository) CellHours(ctx context.Context, userID int64, weekKey string, clientID, mediaTypeID int64) (float64, error) {
	var hours float64
	err := r.q.QueryRow(ctx, `
		SELECT hours FROM time_entries
		WHERE user_id = $1 AND week_key = $2 AND client_id = $3 AND media_type_id = $4
	`, userID, weekKey, clientID, mediaTypeID).Scan(&hours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return hours, nil
}

func (r *repository) WeekTotal(ctx context.Context, userID int64, weekKey string) (float64, error) {
	var total float64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(hours), 0) FROM time_entries
		WHERE user_id = $1 AND week_key = $2
	`, userID, weekKey).Scan(&total)
	return total, err
}

func (r *repository) UpsertHours(ctx context.Context, userID int64, weekKey string, clientID, mediaTypeID int64, hours float64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO time_entries (user_id, week_key, client_id, media_type_id, hours, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, week_key, client_id, media_type_id)
		DO UPDATE SET hours = EXCLUDED.hours, updated_at = NOW()
	`, userID, weekKey, clientID, mediaTypeID, hours)
	return err
}

func (r *repository) WeekPercentages(ctx context.Context, userID int64, weekKey string) ([]WeekPercentage, error) {
	rows, err := r.q.Query(ctx, `
		SELECT client_id,
		       hours * 100.0 / NULLIF(SUM(hours) OVER (), 0) AS percent
		FROM (
			SELECT client_id, SUM(hours) AS hours
			FROM time_entries
			WHERE user_id = $1 AND week_key = $2
			GROUP BY client_id
		) per_client
		ORDER BY client_id
	`, userID, weekKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeekPercentage
	for rows.Next() {
		var p WeekPercentage
		var percent pgtype.Float8
		if err := rows.Scan(&p.ClientID, &percent); err != nil {
			return nil, err
		}
		if percent.Valid {
			p.Percent = percent.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanWeekStatus(row pgx.Row) (*WeekStatus, error) {
	var ws WeekStatus
	var weekKey pgtype.Date
	var name string
	var updatedAt pgtype.Timestamptz

	if err := row.Scan(&ws.UserID, &weekKey, &name, &updatedAt); err != nil {
		return nil, err
	}
	if weekKey.Valid {
		ws.WeekKey = weeks.Key(weekKey.Time.UTC())
	}
	status, err := shared.StatusFromName(name)
	if err != nil {
		return nil, err
	}
	ws.Status = status
	if updatedAt.Valid {
		ws.UpdatedAt = updatedAt.Time
	}
	return &ws, nil
}
