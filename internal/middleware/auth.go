// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// authorization, and request context handling.
package middleware

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/store"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyUser is the context key for the authenticated user.
const ContextKeyUser ContextKey = "user"

// SessionKeyUserID is the session key holding the signed-in user's ID.
const SessionKeyUserID = "user_id"

// Auth creates middleware that requires authentication.
// It checks for a valid user session and redirects to login if not authenticated.
func Auth(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), SessionKeyUserID)
			if userID == 0 {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoadUser creates middleware that loads the current user into the request
// context. This should be used after Auth middleware.
func LoadUser(sm *scs.SessionManager, db *sql.DB) func(http.Handler) http.Handler {
	queries := store.New(db)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), SessionKeyUserID)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := queries.GetUserByID(r.Context(), userID)
			if err != nil {
				// Stale session, likely a deleted account
				_ = sm.Destroy(r.Context())
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalLoadUser creates middleware that loads the current user into
// context when a session exists, and continues anonymously otherwise.
// Use this for public routes where user context is useful but not required.
func OptionalLoadUser(sm *scs.SessionManager, db *sql.DB) func(http.Handler) http.Handler {
	queries := store.New(db)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), SessionKeyUserID)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := queries.GetUserByID(r.Context(), userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the current user from the request context.
// Returns nil if no user is in context.
func GetUser(r *http.Request) *model.User {
	user, ok := r.Context().Value(ContextKeyUser).(model.User)
	if !ok {
		return nil
	}
	return &user
}

// GetUserID returns the current user's ID from context, or 0 if not found.
func GetUserID(r *http.Request) int64 {
	if user := GetUser(r); user != nil {
		return user.ID
	}
	return 0
}

// GetUserIDPtr returns a pointer to the current user's ID from context,
// or nil if not found. Useful for optional user ID parameters in event logging.
func GetUserIDPtr(r *http.Request) *int64 {
	if user := GetUser(r); user != nil {
		id := user.ID
		return &id
	}
	return nil
}

// RequireRole creates middleware that requires a minimum capability tier.
// Roles are hierarchical: admin > editor > viewer. Signed-out visitors are
// sent to login; signed-in users below the tier are sent back to the home
// page rather than shown an error.
func RequireRole(roles *service.RoleService, minRole model.Role) func(http.Handler) http.Handler {
	return requireRole(roles, minRole, nil, false)
}

// RequireRoleStrict is like RequireRole but answers an insufficient
// capability with an explicit 403 instead of a redirect, and records the
// denial in the event log. Use it for endpoints whose existence is not a
// secret, such as the role administration pages.
func RequireRoleStrict(roles *service.RoleService, minRole model.Role, events *service.EventService) func(http.Handler) http.Handler {
	return requireRole(roles, minRole, events, true)
}

func requireRole(roles *service.RoleService, minRole model.Role, events *service.EventService, strict bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			if !roles.CapabilityOf(user).AtLeast(minRole) {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", user.ID,
					"user_role", user.Role,
					"required_role", minRole,
					"remote_addr", r.RemoteAddr,
				)

				if !strict {
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}

				if events != nil {
					events.LogAuthEvent(r.Context(), model.EventLevelWarning,
						"access denied: insufficient permissions", &user.ID, r.RemoteAddr,
						map[string]any{
							"method":        r.Method,
							"path":          r.URL.Path,
							"user_role":     string(user.Role),
							"required_role": string(minRole),
						})
				}

				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOnlyRole creates middleware that admits exactly one role; the
// hierarchy does not apply. Denials use the strict surface: explicit
// 403 with an event log entry. Signed-out visitors are sent to login.
func RequireOnlyRole(roles *service.RoleService, role model.Role, events *service.EventService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			if roles.CapabilityOf(user) != role {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", user.ID,
					"user_role", user.Role,
					"required_role", role,
					"remote_addr", r.RemoteAddr,
				)

				if events != nil {
					events.LogAuthEvent(r.Context(), model.EventLevelWarning,
						"access denied: insufficient permissions", &user.ID, r.RemoteAddr,
						map[string]any{
							"method":        r.Method,
							"path":          r.URL.Path,
							"user_role":     string(user.Role),
							"required_role": string(role),
						})
				}

				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireEditor creates middleware that requires at least editor capability.
// Allows both admin and editor users.
func RequireEditor(roles *service.RoleService) func(http.Handler) http.Handler {
	return RequireRole(roles, model.RoleEditor)
}

// RequireAdmin creates middleware that requires admin capability.
func RequireAdmin(roles *service.RoleService) func(http.Handler) http.Handler {
	return RequireRole(roles, model.RoleAdmin)
}
