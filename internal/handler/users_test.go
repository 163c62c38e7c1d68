// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
)

func TestUserCreate(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminUsers, url.Values{
		"username": {"bob"},
		"email":    {"bob@example.com"},
		"password": {"password123"},
		"role":     {"editor"},
	})), admin)
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var role string
	var isStaff, isSuperuser bool
	if err := db.QueryRow(`SELECT role, is_staff, is_superuser FROM users WHERE username = 'bob'`).Scan(&role, &isStaff, &isSuperuser); err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if role != "editor" || !isStaff || isSuperuser {
		t.Errorf("role=%s staff=%v super=%v; want editor/true/false", role, isStaff, isSuperuser)
	}
}

func TestUserCreateDuplicate(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminUsers, url.Values{
		"username": {"bob"},
		"email":    {"other@example.com"},
		"password": {"password123"},
		"role":     {"viewer"},
	})), admin)
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	// DuplicateUsername is a user-facing message, not a hard failure
	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = 'bob'`).Scan(&count)
	if count != 1 {
		t.Errorf("duplicate create produced %d rows", count)
	}
}

func TestUserCreateRequiresAdmin(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminUsers, url.Values{
		"username": {"bob"},
		"email":    {"bob@example.com"},
		"password": {"password123"},
		"role":     {"viewer"},
	})), editor)
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	// Permission failures on the normal tier send the caller home
	assertRedirect(t, rr.Result(), RouteRoot)
}

func TestUserList(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithUser(requestWithSession(sm, httptest.NewRequest(http.MethodGet, redirectAdminUsers+"?q=bob", nil)), admin)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	assertStatus(t, rr.Code, http.StatusOK)

	var resp struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].Username != "bob" {
		t.Errorf("users = %v; want only bob", resp.Users)
	}
}

func TestUserChangeRole(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	target := createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(postForm(t, "/admin/users/role", url.Values{
		"role": {"admin"},
	}), admin), map[string]string{"id": formatID(target.ID)})
	rr := httptest.NewRecorder()
	h.ChangeRole(rr, req)

	assertStatus(t, rr.Code, http.StatusOK)

	// Role and both derived flags change together
	var role string
	var isStaff, isSuperuser bool
	if err := db.QueryRow(`SELECT role, is_staff, is_superuser FROM users WHERE id = ?`, target.ID).Scan(&role, &isStaff, &isSuperuser); err != nil {
		t.Fatal(err)
	}
	if role != "admin" || !isStaff || !isSuperuser {
		t.Errorf("role=%s staff=%v super=%v; want admin/true/true", role, isStaff, isSuperuser)
	}
}

func TestUserChangeRoleInvalid(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	target := createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(postForm(t, "/admin/users/role", url.Values{
		"role": {"superhero"},
	}), admin), map[string]string{"id": formatID(target.ID)})
	rr := httptest.NewRecorder()
	h.ChangeRole(rr, req)

	assertStatus(t, rr.Code, http.StatusUnprocessableEntity)
}

func TestUserDeleteSelf(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, "/admin/users/delete", nil)), admin), map[string]string{"id": formatID(admin.ID)})
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, admin.ID).Scan(&count)
	if count != 1 {
		t.Error("admin deleted their own account through the admin path")
	}
}

func TestUserDeleteSuperuser(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	other := createTestUser(t, db, "root", model.RoleAdmin)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, "/admin/users/delete", nil)), admin), map[string]string{"id": formatID(other.ID)})
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, other.ID).Scan(&count)
	if count != 1 {
		t.Error("superuser was deleted through the admin path")
	}
}

func TestUserDelete(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	target := createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, "/admin/users/delete", nil)), admin), map[string]string{"id": formatID(target.ID)})
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, target.ID).Scan(&count)
	if count != 0 {
		t.Error("user still present after delete")
	}
}

func TestUserUpdate(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	target := createTestUser(t, db, "bob", model.RoleViewer)
	h := NewUsersHandler(sm, testAccountService(db), service.NewEventService(db))

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, "/admin/users", url.Values{
		"username": {"robert"},
		"email":    {"robert@example.com"},
		"role":     {"editor"},
	})), admin), map[string]string{"id": formatID(target.ID)})
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminUsers)

	var username, role string
	var isStaff bool
	if err := db.QueryRow(`SELECT username, role, is_staff FROM users WHERE id = ?`, target.ID).Scan(&username, &role, &isStaff); err != nil {
		t.Fatal(err)
	}
	if username != "robert" || role != "editor" || !isStaff {
		t.Errorf("username=%s role=%s staff=%v; want robert/editor/true", username, role, isStaff)
	}
}
