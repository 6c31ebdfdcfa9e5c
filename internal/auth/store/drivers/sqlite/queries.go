package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the SQL for the users and admin_audit_log tables.
type queries struct {
	db  DBTX
	now func() time.Time
}

func newQueries(db DBTX, now func() time.Time) *queries {
	return &queries{db: db, now: now}
}

const userColumns = `id, email, display_name, password_hash, is_admin, created_at, updated_at`

// userRow mirrors a users row; timestamps are RFC 3339 text.
type userRow struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    string
	UpdatedAt    string
}

func scanUser(row *sql.Row) (userRow, error) {
	var u userRow
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *queries) GetUserByID(ctx context.Context, id int64) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *queries) GetUserByEmail(ctx context.Context, email string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const createUser = `INSERT INTO users (email, display_name, password_hash, is_admin, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

type createUserParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    string
}

func (q *queries) CreateUser(ctx context.Context, p createUserParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createUser,
		p.Email,
		p.DisplayName,
		p.PasswordHash,
		p.IsAdmin,
		p.CreatedAt,
		p.CreatedAt,
	).Scan(&id)
	return id, err
}

const updateUserDisplayName = `UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`

func (q *queries) UpdateUserDisplayName(ctx context.Context, id int64, name string) (int64, error) {
	return q.execRows(ctx, updateUserDisplayName, name, q.timestamp(), id)
}

const updateUserPasswordHash = `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`

func (q *queries) UpdateUserPasswordHash(ctx context.Context, id int64, hash string) (int64, error) {
	return q.execRows(ctx, updateUserPasswordHash, hash, q.timestamp(), id)
}

const updateUserAdmin = `UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?`

func (q *queries) UpdateUserAdmin(ctx context.Context, id int64, admin bool) (int64, error) {
	return q.execRows(ctx, updateUserAdmin, admin, q.timestamp(), id)
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *queries) DeleteUser(ctx context.Context, id int64) (int64, error) {
	return q.execRows(ctx, deleteUser, id)
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}

func (q *queries) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (q *queries) timestamp() string {
	return formatTime(q.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
