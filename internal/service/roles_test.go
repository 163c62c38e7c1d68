// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/olegiv/oblog-go/internal/model"
)

func TestCapabilityOf(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)

	tests := []struct {
		name string
		user *model.User
		want model.Role
	}{
		{"nil user", nil, model.RoleAnonymous},
		{"viewer", &model.User{Role: model.RoleViewer}, model.RoleViewer},
		{"editor", &model.User{Role: model.RoleEditor}, model.RoleEditor},
		{"admin", &model.User{Role: model.RoleAdmin}, model.RoleAdmin},
		{"unknown role", &model.User{Role: "moderator"}, model.RoleAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.CapabilityOf(tt.user); got != tt.want {
				t.Errorf("CapabilityOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCapabilityLadder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)

	viewer := &model.User{Role: model.RoleViewer}
	editor := &model.User{Role: model.RoleEditor}
	admin := &model.User{Role: model.RoleAdmin}

	tests := []struct {
		name          string
		user          *model.User
		canSubmit     bool
		canModerate   bool
		canAdminister bool
	}{
		{"anonymous", nil, true, false, false},
		{"viewer", viewer, true, false, false},
		{"editor", editor, true, true, false},
		{"admin", admin, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.CanSubmitPost(tt.user); got != tt.canSubmit {
				t.Errorf("CanSubmitPost() = %v, want %v", got, tt.canSubmit)
			}
			if got := svc.CanModerate(tt.user); got != tt.canModerate {
				t.Errorf("CanModerate() = %v, want %v", got, tt.canModerate)
			}
			if got := svc.CanAdministerUsers(tt.user); got != tt.canAdminister {
				t.Errorf("CanAdministerUsers() = %v, want %v", got, tt.canAdminister)
			}
		})
	}
}

func TestSetRole(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "promoted", model.RoleViewer)

	updated, err := svc.SetRole(ctx, user.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if updated.Role != model.RoleAdmin {
		t.Errorf("role = %v, want admin", updated.Role)
	}
	if !updated.IsStaff || !updated.IsSuperuser {
		t.Errorf("flags = (%v, %v), want (true, true)", updated.IsStaff, updated.IsSuperuser)
	}

	// Flags in the database must agree with the role
	var isStaff, isSuperuser bool
	if err := db.QueryRow("SELECT is_staff, is_superuser FROM users WHERE id = ?", user.ID).Scan(&isStaff, &isSuperuser); err != nil {
		t.Fatalf("failed to read flags: %v", err)
	}
	if !isStaff || !isSuperuser {
		t.Errorf("stored flags = (%v, %v), want (true, true)", isStaff, isSuperuser)
	}

	// Demotion clears both flags
	updated, err = svc.SetRole(ctx, user.ID, model.RoleViewer)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if updated.IsStaff || updated.IsSuperuser {
		t.Errorf("flags = (%v, %v), want (false, false)", updated.IsStaff, updated.IsSuperuser)
	}
}

func TestSetRole_EditorFlags(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)

	user := createTestUser(t, db, "staffer", model.RoleViewer)

	updated, err := svc.SetRole(context.Background(), user.ID, model.RoleEditor)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if !updated.IsStaff {
		t.Error("editor should be staff")
	}
	if updated.IsSuperuser {
		t.Error("editor should not be superuser")
	}
}

func TestSetRole_InvalidRole(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)

	user := createTestUser(t, db, "someone", model.RoleViewer)

	_, err := svc.SetRole(context.Background(), user.ID, "owner")
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("SetRole error = %v, want ValidationErrors", err)
	}
	if _, ok := verrs["role"]; !ok {
		t.Errorf("validation errors = %v, want role entry", verrs)
	}
}

func TestSetRole_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRoleService(db)

	_, err := svc.SetRole(context.Background(), 9999, model.RoleEditor)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRole error = %v, want ErrNotFound", err)
	}
}
