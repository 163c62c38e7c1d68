// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/util"
)

// SettingsHandler handles the self-service settings routes available
// to every authenticated role.
type SettingsHandler struct {
	sessionManager *scs.SessionManager
	accounts       *service.AccountService
	eventService   *service.EventService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(sm *scs.SessionManager, accounts *service.AccountService, events *service.EventService) *SettingsHandler {
	return &SettingsHandler{
		sessionManager: sm,
		accounts:       accounts,
		eventService:   events,
	}
}

// Show serves the caller's profile and stored preferences.
func (h *SettingsHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	pref, err := h.accounts.GetPreferences(r.Context(), user.ID)
	if err != nil {
		logAndInternalError(w, "failed to load preferences", "error", err, "user_id", user.ID)
		return
	}

	data := map[string]any{
		"user":        user,
		"preferences": pref,
	}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}

// UpdateProfile changes the caller's username and email.
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectSettings) {
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), middleware.GetUser(r), service.UpdateProfileInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
	})
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectSettings, err)
		return
	}

	slog.Info("profile updated", "user_id", user.ID)
	flashSuccess(w, r, h.sessionManager, redirectSettings, "Profile updated")
}

// ChangePassword verifies the current password before storing a new one.
func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectSettings) {
		return
	}

	next := r.FormValue("new_password")
	if confirm := r.FormValue("new_password_confirm"); confirm != next {
		flashError(w, r, h.sessionManager, redirectSettings, "Passwords do not match")
		return
	}

	user := middleware.GetUser(r)
	if err := h.accounts.ChangePassword(r.Context(), user, r.FormValue("current_password"), next); err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectSettings, err)
		return
	}

	h.eventService.LogAuthEvent(r.Context(), model.EventLevelInfo, "Password changed", &user.ID, util.ClientIP(r), nil)
	flashSuccess(w, r, h.sessionManager, redirectSettings, "Password changed")
}

// UpdatePreferences stores the caller's preference record.
func (h *SettingsHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectSettings) {
		return
	}

	user := middleware.GetUser(r)
	pref := model.Preference{
		UserID:        user.ID,
		Notifications: r.FormValue("notifications") == "on",
		AutoBackup:    r.FormValue("auto_backup") == "on",
		DarkMode:      r.FormValue("dark_mode") == "on",
	}
	if err := h.accounts.SavePreferences(r.Context(), pref); err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectSettings, err)
		return
	}

	flashSuccess(w, r, h.sessionManager, redirectSettings, "Preferences saved")
}

// DeleteAccount removes the caller's own account. Unlike the
// administrative path this works for any role, superusers included.
func (h *SettingsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := h.accounts.SelfDelete(r.Context(), user); err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectSettings, err)
		return
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("account self-deleted", "user_id", user.ID)
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}
