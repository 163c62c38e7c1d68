// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/middleware"
)

// PlannerHandler serves the weekly study planner. The page belongs to
// viewers alone; the route gate rejects every other role.
type PlannerHandler struct {
	sessionManager *scs.SessionManager
}

// NewPlannerHandler creates a new PlannerHandler.
func NewPlannerHandler(sm *scs.SessionManager) *PlannerHandler {
	return &PlannerHandler{sessionManager: sm}
}

// plannerDay is one day of the planner week.
type plannerDay struct {
	Day  string `json:"day"`
	Date string `json:"date"`
}

// plannerWeek returns the seven days of the week containing now,
// starting on Monday.
func plannerWeek(now time.Time) []plannerDay {
	offset := (int(now.Weekday()) + 6) % 7 // days since Monday
	monday := now.AddDate(0, 0, -offset)

	days := make([]plannerDay, 7)
	for i := range days {
		d := monday.AddDate(0, 0, i)
		days[i] = plannerDay{Day: d.Weekday().String(), Date: d.Format("2006-01-02")}
	}
	return days
}

// Show serves the planner week for the signed-in viewer.
func (h *PlannerHandler) Show(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"user": middleware.GetUser(r),
		"week": plannerWeek(time.Now()),
	}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}
