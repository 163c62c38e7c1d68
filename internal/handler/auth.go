// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/util"
)

// AuthHandler handles authentication routes.
type AuthHandler struct {
	sessionManager  *scs.SessionManager
	accounts        *service.AccountService
	eventService    *service.EventService
	loginProtection *middleware.LoginProtection
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sm *scs.SessionManager, accounts *service.AccountService, events *service.EventService, lp *middleware.LoginProtection) *AuthHandler {
	return &AuthHandler{
		sessionManager:  sm,
		accounts:        accounts,
		eventService:    events,
		loginProtection: lp,
	}
}

// LoginForm reports the sign-in state for the login page. Signed-in
// staff are redirected to the dashboard, other users to the homepage.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		if user.IsStaff {
			http.Redirect(w, r, redirectAdmin, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
		return
	}

	data := map[string]any{"authenticated": false}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}

// Login handles the login form submission.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectLogin) {
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		flashError(w, r, h.sessionManager, redirectLogin, "Username and password are required")
		return
	}

	clientIP := util.ClientIP(r)

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(username); locked {
			h.eventService.LogAuthEvent(r.Context(), model.EventLevelWarning, "Login attempt on locked account", nil, clientIP, map[string]any{"username": username})
			flashError(w, r, h.sessionManager, redirectLogin, "Account temporarily locked. Try again in "+formatDuration(remaining))
			return
		}
	}

	user, err := h.accounts.Authenticate(r.Context(), username, password, clientIP)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			slog.Error("login failed", "error", err)
		}
		if h.loginProtection != nil {
			if locked, lockDuration := h.loginProtection.RecordFailedAttempt(username); locked {
				h.eventService.LogAuthEvent(r.Context(), model.EventLevelWarning, "Account locked after failed attempts", nil, clientIP, map[string]any{"username": username, "duration": lockDuration.String()})
				flashError(w, r, h.sessionManager, redirectLogin, "Too many failed attempts. Try again in "+formatDuration(lockDuration))
				return
			}
			if remaining := h.loginProtection.GetRemainingAttempts(username); remaining > 0 && remaining <= 3 {
				flashError(w, r, h.sessionManager, redirectLogin, fmt.Sprintf("Invalid username or password. %d attempts remaining", remaining))
				return
			}
		}
		flashError(w, r, h.sessionManager, redirectLogin, "Invalid username or password")
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(username)
	}

	// Regenerate session ID to prevent session fixation
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)

	setFlash(r, h.sessionManager, "Welcome back, "+user.Username, "success")
	if user.IsStaff {
		http.Redirect(w, r, redirectAdmin, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}

// Signup registers a new viewer account and signs it in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, RouteSignup) {
		return
	}

	password := r.FormValue("password")
	if confirm := r.FormValue("password_confirm"); confirm != "" && confirm != password {
		flashError(w, r, h.sessionManager, RouteSignup, "Passwords do not match")
		return
	}

	user, err := h.accounts.Signup(r.Context(), service.CreateUserInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: password,
	}, util.ClientIP(r))
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, RouteSignup, err)
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	slog.Info("user signed up", "user_id", user.ID, "username", user.Username)
	flashSuccess(w, r, h.sessionManager, RouteRoot, "Welcome, "+user.Username)
}

// Logout handles user logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID)
	if userID > 0 {
		h.eventService.LogAuthEvent(r.Context(), model.EventLevelInfo, "User logged out", &userID, util.ClientIP(r), nil)
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user logged out", "user_id", userID)
	flashAndRedirect(w, r, h.sessionManager, redirectLogin, "You have been logged out", "info")
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
