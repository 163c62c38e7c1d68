// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/service"
)

// recentEventLimit is how many audit events the dashboard shows.
const recentEventLimit = 10

// DashboardHandler serves the staff dashboard summary.
type DashboardHandler struct {
	sessionManager *scs.SessionManager
	moderation     *service.ModerationService
	accounts       *service.AccountService
	eventService   *service.EventService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(sm *scs.SessionManager, moderation *service.ModerationService, accounts *service.AccountService, events *service.EventService) *DashboardHandler {
	return &DashboardHandler{
		sessionManager: sm,
		moderation:     moderation,
		accounts:       accounts,
		eventService:   events,
	}
}

// Show serves the dashboard: post counts per status, and for admins
// the account totals per role plus recent audit events. Counts are
// computed fresh on every request.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	summary, err := h.moderation.StatusSummary(r.Context(), user)
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"user":  user,
		"posts": summary,
	}

	if roleCounts, err := h.accounts.RoleCounts(r.Context(), user); err == nil {
		data["users"] = roleCounts
	}
	if events, err := h.eventService.RecentEvents(r.Context(), recentEventLimit); err == nil {
		data["recent_events"] = events
	}

	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}
