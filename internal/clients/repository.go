package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("client not found")

// Repository provides access to the client tree and per-user visible lists.
type Repository interface {
	Get(ctx context.Context, id int64) (*Client, error)
	GetByName(ctx context.Context, name string) (*Client, error)
	List(ctx context.Context, includeHidden bool) ([]Client, error)
	Create(ctx context.Context, client Client) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, id int64) error

	VisibleForUser(ctx context.Context, userID int64) ([]VisibleClient, error)
	SetVisibleForUser(ctx context.Context, userID int64, clientIDs []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const clientColumns = `id, name, parent_id, is_default, hidden, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

func (r *repository) GetByName(ctx context.Context, name string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE lower(name) = lower($1)`, name)
	return scanClient(row)
}

func (r *repository) List(ctx context.Context, includeHidden bool) ([]Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients`
	if !includeHidden {
		query += ` WHERE hidden = false`
	}
	query += ` ORDER BY is_default DESC, name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectClients(rows)
}

func (r *repository) Create(ctx context.Context, client Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, parent_id, is_default, hidden, created_at, updated_at)
		VALUES ($1, $2, $3, false, NOW(), NOW())
		RETURNING id
	`, client.Name, client.ParentID, client.IsDefault).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE clients SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "parent_id", "hidden"} {
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) VisibleForUser(ctx context.Context, userID int64) ([]VisibleClient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.client_id, c.name, v.display_order
		FROM user_visible_clients v
		JOIN clients c ON c.id = v.client_id
		WHERE v.user_id = $1
		ORDER BY v.display_order
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VisibleClient
	for rows.Next() {
		var v VisibleClient
		if err := rows.Scan(&v.ClientID, &v.Name, &v.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) SetVisibleForUser(ctx context.Context, userID int64, clientIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_visible_clients WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for order, clientID := range clientIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_visible_clients (user_id, client_id, display_order)
			VALUES ($1, $2, $3)
		`, userID, clientID, order)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var parentID pgtype.Int8
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&c.ID, &c.Name, &parentID, &c.IsDefault, &c.Hidden, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return &c, nil
}

func collectClients(rows pgx.Rows) ([]Client, error) {
	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
