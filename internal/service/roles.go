// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/store"
)

// RoleService resolves request capabilities and reassigns user roles.
// It owns the user-role association: no other component writes roles.
type RoleService struct {
	queries *store.Queries
}

// NewRoleService creates a new RoleService.
func NewRoleService(db *sql.DB) *RoleService {
	return &RoleService{queries: store.New(db)}
}

// CapabilityOf returns the effective capability tier for a request.
// A nil user is anonymous. A user holding a role the hierarchy does not
// know is treated as lowest privilege; the inconsistency is logged, not
// surfaced as an error.
func (s *RoleService) CapabilityOf(user *model.User) model.Role {
	if user == nil {
		return model.RoleAnonymous
	}
	if !user.Role.IsAssignable() {
		slog.Warn("user has unknown role, treating as anonymous",
			"user_id", user.ID, "role", user.Role)
		return model.RoleAnonymous
	}
	return user.Role
}

// CanSubmitPost reports whether the capability may submit posts.
// Anonymous submitters are additionally subject to the submission guard.
func (s *RoleService) CanSubmitPost(user *model.User) bool {
	// Every tier may submit; anonymous quota is enforced separately.
	_ = s.CapabilityOf(user)
	return true
}

// CanModerate reports whether the capability may list and transition posts.
func (s *RoleService) CanModerate(user *model.User) bool {
	return s.CapabilityOf(user).AtLeast(model.RoleEditor)
}

// CanAdministerUsers reports whether the capability may manage accounts.
func (s *RoleService) CanAdministerUsers(user *model.User) bool {
	return s.CapabilityOf(user).AtLeast(model.RoleAdmin)
}

// SetRole reassigns a user's role. The derived privilege flags are
// written in the same statement as the role so they can never be
// observed stale.
func (s *RoleService) SetRole(ctx context.Context, userID int64, role model.Role) (model.User, error) {
	if !role.IsAssignable() {
		return model.User{}, ValidationErrors{"role": "Invalid role"}
	}

	isStaff, isSuperuser := model.StaffFlags(role)
	user, err := s.queries.UpdateUserRole(ctx, store.UpdateUserRoleParams{
		Role:        role,
		IsStaff:     isStaff,
		IsSuperuser: isSuperuser,
		UpdatedAt:   time.Now(),
		ID:          userID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("updating role: %w", err)
	}

	slog.Info("role updated", "user_id", user.ID, "role", role)
	return user, nil
}
