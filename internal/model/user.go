// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain models and types used throughout the
// application including User, Post, Role, and Preference structures.
package model

import (
	"database/sql"
	"time"
)

// Role is a fixed capability tier. Every user carries exactly one role;
// requests without an authenticated identity resolve to RoleAnonymous.
type Role string

// User roles, ordered by capability: admin > editor > viewer > anonymous.
const (
	RoleAdmin     Role = "admin"
	RoleEditor    Role = "editor"
	RoleViewer    Role = "viewer"
	RoleAnonymous Role = "anonymous"
)

// AssignableRoles contains the roles that can be stored on a user record.
// RoleAnonymous is a request-time capability, never persisted.
var AssignableRoles = []Role{RoleAdmin, RoleEditor, RoleViewer}

// IsAssignable returns true if the role can be stored on a user record.
func (r Role) IsAssignable() bool {
	for _, valid := range AssignableRoles {
		if r == valid {
			return true
		}
	}
	return false
}

// Level returns a numeric level for the role hierarchy.
// Higher level = more permissions. Unknown roles map to 0 (anonymous).
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the role grants every capability of min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// StaffFlags derives the persisted privilege flags from a role.
// This is the single derivation point: every write path that touches a
// user's role must store exactly these values alongside it.
func StaffFlags(role Role) (isStaff, isSuperuser bool) {
	return role == RoleEditor || role == RoleAdmin, role == RoleAdmin
}

// User represents a blog user.
type User struct {
	ID           int64        `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Never expose in JSON
	Role         Role         `json:"role"`
	IsStaff      bool         `json:"is_staff"`
	IsSuperuser  bool         `json:"is_superuser"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastLoginAt  sql.NullTime `json:"last_login_at,omitempty"`
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FlagsConsistent reports whether the stored privilege flags match the
// user's role. A false result indicates a write path bypassed StaffFlags.
func (u *User) FlagsConsistent() bool {
	isStaff, isSuperuser := StaffFlags(u.Role)
	return u.IsStaff == isStaff && u.IsSuperuser == isSuperuser
}
