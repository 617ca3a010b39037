package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// Repository provides access to user accounts.
type Repository interface {
	Get(ctx context.Context, id int64) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context, req ListUsersRequest) ([]User, error)
	Create(ctx context.Context, user User) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	Subordinates(ctx context.Context, headID int64) ([]User, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const userColumns = `id, login, name, email, password_hash, role, manager_id, user_head_id, department_id, first_week, hidden, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *repository) GetByLogin(ctx context.Context, login string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(login) = lower($1)`, login)
	return scanUser(row)
}

func (r *repository) List(ctx context.Context, req ListUsersRequest) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var conditions []string
	var args []interface{}
	argPos := 1

	if !req.IncludeHidden {
		conditions = append(conditions, "hidden = false")
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(login ILIKE $%d OR name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			query += " AND " + conditions[i]
		}
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *repository) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (login, name, email, password_hash, role, manager_id, user_head_id, department_id, first_week, hidden, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, NOW(), NOW())
		RETURNING id
	`, user.Login, user.Name, user.Email, user.PasswordHash, user.Role,
		user.ManagerID, user.UserHeadID, user.DepartmentID, user.FirstWeek).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE users SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "email", "role", "manager_id", "user_head_id", "department_id", "first_week", "hidden", "password_hash"} {
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
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Subordinates(ctx context.Context, headID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE (manager_id = $1 OR user_head_id = $1) AND hidden = false
		ORDER BY name
	`, headID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var email pgtype.Text
	var managerID, headID, deptID pgtype.Int8
	var firstWeek pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&u.ID, &u.Login, &u.Name, &email, &u.PasswordHash, &u.Role,
		&managerID, &headID, &deptID, &firstWeek, &u.Hidden, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if managerID.Valid {
		u.ManagerID = &managerID.Int64
	}
	if headID.Valid {
		u.UserHeadID = &headID.Int64
	}
	if deptID.Valid {
		u.DepartmentID = &deptID.Int64
	}
	if firstWeek.Valid {
		fw := firstWeek.Time.UTC()
		u.FirstWeek = &fw
	}
	if createdAt.Valid {
		u.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		u.UpdatedAt = updatedAt.Time
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
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
