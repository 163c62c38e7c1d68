// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/olegiv/oblog-go/internal/model"
)

const userColumns = `id, username, email, password_hash, role, is_staff, is_superuser, created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	return u, err
}

// CreateUserParams holds parameters for CreateUser.
type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	Role         model.Role
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUser inserts a user and returns the stored record.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, is_staff, is_superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		arg.Username, arg.Email, arg.PasswordHash, string(arg.Role),
		arg.IsStaff, arg.IsSuperuser, arg.CreatedAt, arg.UpdatedAt)
	return scanUser(row)
}

// GetUserByID returns the user with the given id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername returns the user with the given username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// ListUsersParams holds parameters for ListUsers.
type ListUsersParams struct {
	Search      string // Substring match on username or email; empty matches all
	OldestFirst bool
	Limit       int64
	Offset      int64
}

// ListUsers returns a page of users, newest first unless OldestFirst is set.
func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]model.User, error) {
	order := "created_at DESC"
	if arg.OldestFirst {
		order = "created_at ASC"
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE (?1 = '' OR username LIKE '%' || ?1 || '%' ESCAPE '\'
		       OR email LIKE '%' || ?1 || '%' ESCAPE '\')
		ORDER BY `+order+`
		LIMIT ?2 OFFSET ?3`,
		escapeLike(arg.Search), arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of users matching the search term
// (all users when search is empty).
func (q *Queries) CountUsers(ctx context.Context, search string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE (?1 = '' OR username LIKE '%' || ?1 || '%' ESCAPE '\'
		       OR email LIKE '%' || ?1 || '%' ESCAPE '\')`,
		escapeLike(search)).Scan(&count)
	return count, err
}

// CountUsersByRole returns the number of users holding the given role.
func (q *Queries) CountUsersByRole(ctx context.Context, role model.Role) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ?`, string(role)).Scan(&count)
	return count, err
}

// UpdateUserParams holds parameters for UpdateUser.
type UpdateUserParams struct {
	Username    string
	Email       string
	Role        model.Role
	IsStaff     bool
	IsSuperuser bool
	UpdatedAt   time.Time
	ID          int64
}

// UpdateUser updates a user's identity fields together with its role and
// derived flags. Role and flags are written in the same statement so the
// flags can never be observed out of sync with the role.
func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, role = ?, is_staff = ?, is_superuser = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		arg.Username, arg.Email, string(arg.Role), arg.IsStaff, arg.IsSuperuser, arg.UpdatedAt, arg.ID)
	return scanUser(row)
}

// UpdateUserRoleParams holds parameters for UpdateUserRole.
type UpdateUserRoleParams struct {
	Role        model.Role
	IsStaff     bool
	IsSuperuser bool
	UpdatedAt   time.Time
	ID          int64
}

// UpdateUserRole reassigns a user's role and derived flags in one statement.
func (q *Queries) UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE users
		SET role = ?, is_staff = ?, is_superuser = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		string(arg.Role), arg.IsStaff, arg.IsSuperuser, arg.UpdatedAt, arg.ID)
	return scanUser(row)
}

// UpdateUserPasswordParams holds parameters for UpdateUserPassword.
type UpdateUserPasswordParams struct {
	PasswordHash string
	UpdatedAt    time.Time
	ID           int64
}

// UpdateUserPassword replaces a user's password hash.
func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		arg.PasswordHash, arg.UpdatedAt, arg.ID)
	return err
}

// UpdateUserLastLogin stamps a user's last login time.
func (q *Queries) UpdateUserLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at, id)
	return err
}

// DeleteUser removes a user. Returns sql.ErrNoRows if no row matched.
func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
