// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/oblog-go/internal/service"
)

// setFlash stores a flash message in the session for the next request.
func setFlash(r *http.Request, sm *scs.SessionManager, message, messageType string) {
	sm.Put(r.Context(), sessionKeyFlash, message)
	sm.Put(r.Context(), sessionKeyFlashType, messageType)
}

// popFlash retrieves and clears the pending flash message, if any.
func popFlash(r *http.Request, sm *scs.SessionManager) (message, messageType string) {
	message = sm.PopString(r.Context(), sessionKeyFlash)
	if message == "" {
		return "", ""
	}
	messageType = sm.PopString(r.Context(), sessionKeyFlashType)
	if messageType == "" {
		messageType = "info"
	}
	return message, messageType
}

// flashAndRedirect sets a flash message and redirects to the given URL.
// Uses http.StatusSeeOther (303) for POST/PUT/DELETE redirects.
func flashAndRedirect(w http.ResponseWriter, r *http.Request, sm *scs.SessionManager, url, message, messageType string) {
	setFlash(r, sm, message, messageType)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// flashError sets an error flash message and redirects to the given URL.
func flashError(w http.ResponseWriter, r *http.Request, sm *scs.SessionManager, url, message string) {
	flashAndRedirect(w, r, sm, url, message, "error")
}

// flashSuccess sets a success flash message and redirects to the given URL.
func flashSuccess(w http.ResponseWriter, r *http.Request, sm *scs.SessionManager, url, message string) {
	flashAndRedirect(w, r, sm, url, message, "success")
}

// parseFormOrRedirect parses the request form and redirects with an error message on failure.
// Returns true if parsing succeeded, false if it failed (and redirect was performed).
func parseFormOrRedirect(w http.ResponseWriter, r *http.Request, sm *scs.SessionManager, redirectURL string) bool {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, sm, redirectURL, "Invalid form data")
		return false
	}
	return true
}

// logAndHTTPError logs an error and writes an HTTP error response.
func logAndHTTPError(w http.ResponseWriter, message string, statusCode int, logMsg string, args ...any) {
	slog.Error(logMsg, args...)
	http.Error(w, message, statusCode)
}

// logAndInternalError logs an error and writes a 500 Internal Server Error response.
func logAndInternalError(w http.ResponseWriter, logMsg string, args ...any) {
	logAndHTTPError(w, "Internal Server Error", http.StatusInternalServerError, logMsg, args...)
}

// idParam extracts the {id} chi URL parameter as an int64. Returns
// false after writing a 404 when the parameter is missing or malformed.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Not Found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

// formPage parses the "page" query parameter, defaulting to 1. Values
// below 1 are left to the service-layer clamp.
func formPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}

// redirectServiceError translates a service-layer failure into the
// response the route expects: permission problems send the visitor
// home, quota exhaustion warns and points at the login page, and
// validation or conflict errors flash back to the originating form.
func redirectServiceError(w http.ResponseWriter, r *http.Request, sm *scs.SessionManager, backURL string, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
	case errors.Is(err, service.ErrQuotaExceeded):
		flashAndRedirect(w, r, sm, redirectLogin, "Anonymous submission limit reached. Sign in to keep posting.", "warning")
	case errors.Is(err, service.ErrNotFound):
		flashError(w, r, sm, backURL, "Not found")
	case errors.Is(err, service.ErrNothingSelected),
		errors.Is(err, service.ErrDuplicateUsername),
		errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrSuperuserDelete):
		flashError(w, r, sm, backURL, capitalize(err.Error()))
	default:
		if fields, ok := service.AsValidationErrors(err); ok {
			flashError(w, r, sm, backURL, capitalize(fields.Error()))
			return
		}
		slog.Error("request failed", "error", err, "path", r.URL.Path)
		flashError(w, r, sm, backURL, "Something went wrong. Please try again.")
	}
}

// jsonServiceError translates a service-layer failure into a JSON
// error response for API-style routes.
func jsonServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		writeJSONError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, service.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrQuotaExceeded):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrNothingSelected),
		errors.Is(err, service.ErrDuplicateUsername),
		errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrSuperuserDelete):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		if fields, ok := service.AsValidationErrors(err); ok {
			writeJSONValidationError(w, fields)
			return
		}
		slog.Error("request failed", "error", err, "path", r.URL.Path)
		writeJSONError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// capitalize upper-cases the first byte of an ASCII message for
// user-facing display.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
