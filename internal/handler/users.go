// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/util"
)

// UsersHandler handles account administration routes.
type UsersHandler struct {
	sessionManager *scs.SessionManager
	accounts       *service.AccountService
	eventService   *service.EventService
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(sm *scs.SessionManager, accounts *service.AccountService, events *service.EventService) *UsersHandler {
	return &UsersHandler{
		sessionManager: sm,
		accounts:       accounts,
		eventService:   events,
	}
}

// List serves the account listing with username/email search and
// pagination.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.accounts.ListUsers(r.Context(), middleware.GetUser(r), q.Get("q"), formPage(r))
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"users":      result.Users,
		"roles":      model.AssignableRoles,
		"pagination": BuildPagination(result.Page, result.TotalPages, result.Total, service.UsersPerPage, redirectAdminUsers, q),
	}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}

// Show serves a single account.
func (h *UsersHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.GetUser(r.Context(), middleware.GetUser(r), id)
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}
	writeJSONSuccess(w, map[string]any{"user": user})
}

// Create adds a new account with an explicit role.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectAdminUsers) {
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), middleware.GetUser(r), service.CreateUserInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Role:     model.Role(r.FormValue("role")),
	})
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectAdminUsers, err)
		return
	}

	h.eventService.LogUserEvent(r.Context(), model.EventLevelInfo, "User created", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"target_id": user.ID, "username": user.Username, "role": user.Role})
	flashSuccess(w, r, h.sessionManager, redirectAdminUsers, "User created")
}

// Update edits an account's username, email and role.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	backURL := fmt.Sprintf(redirectAdminUsersID, id)

	if !parseFormOrRedirect(w, r, h.sessionManager, backURL) {
		return
	}

	user, err := h.accounts.EditUser(r.Context(), middleware.GetUser(r), id, service.EditUserInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Role:     model.Role(r.FormValue("role")),
	})
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, backURL, err)
		return
	}

	h.eventService.LogUserEvent(r.Context(), model.EventLevelInfo, "User updated", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"target_id": user.ID, "username": user.Username, "role": user.Role})
	flashSuccess(w, r, h.sessionManager, redirectAdminUsers, "User updated")
}

// ChangeRole reassigns an account's role. This route sits behind the
// strict permission tier and answers JSON rather than redirecting.
func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	user, err := h.accounts.ChangeRole(r.Context(), middleware.GetUser(r), id, model.Role(r.FormValue("role")))
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}

	h.eventService.LogUserEvent(r.Context(), model.EventLevelInfo, "User role changed", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"target_id": user.ID, "role": user.Role})
	writeJSONSuccess(w, map[string]any{"user": user})
}

// Delete removes an account through the administrative path. Deleting
// yourself or a superuser is refused here; self-service deletion lives
// under settings.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.accounts.DeleteUser(r.Context(), middleware.GetUser(r), id); err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectAdminUsers, err)
		return
	}

	h.eventService.LogUserEvent(r.Context(), model.EventLevelInfo, "User deleted", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"target_id": id})
	flashSuccess(w, r, h.sessionManager, redirectAdminUsers, "User deleted")
}
