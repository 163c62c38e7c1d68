// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
)

func TestDashboard(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	admin := createTestUser(t, db, "admin", model.RoleAdmin)
	createTestUser(t, db, "editor", model.RoleEditor)
	createTestPost(t, db, "One", model.PostStatusPublished, admin.ID, "")
	createTestPost(t, db, "Two", model.PostStatusPending, admin.ID, "")
	createTestPost(t, db, "Three", model.PostStatusPending, admin.ID, "")

	h := NewDashboardHandler(sm, testModerationService(db), testAccountService(db), service.NewEventService(db))

	req := requestWithUser(requestWithSession(sm, httptest.NewRequest(http.MethodGet, redirectAdmin, nil)), admin)
	rr := httptest.NewRecorder()
	h.Show(rr, req)

	assertStatus(t, rr.Code, http.StatusOK)

	var resp struct {
		Posts struct {
			Total     int64 `json:"total"`
			Draft     int64 `json:"draft"`
			Pending   int64 `json:"pending"`
			Published int64 `json:"published"`
		} `json:"posts"`
		Users map[string]int64 `json:"users"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Posts.Total != 3 || resp.Posts.Pending != 2 || resp.Posts.Published != 1 || resp.Posts.Draft != 0 {
		t.Errorf("post summary = %+v; want total=3 pending=2 published=1", resp.Posts)
	}
	if resp.Users["admin"] != 1 || resp.Users["editor"] != 1 {
		t.Errorf("role counts = %v; want one admin and one editor", resp.Users)
	}
}

func TestDashboardCountsAreFresh(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	h := NewDashboardHandler(sm, testModerationService(db), testAccountService(db), service.NewEventService(db))

	show := func() int64 {
		req := requestWithUser(requestWithSession(sm, httptest.NewRequest(http.MethodGet, redirectAdmin, nil)), editor)
		rr := httptest.NewRecorder()
		h.Show(rr, req)
		var resp struct {
			Posts struct {
				Total int64 `json:"total"`
			} `json:"posts"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON response: %v", err)
		}
		return resp.Posts.Total
	}

	if got := show(); got != 0 {
		t.Errorf("total = %d; want 0", got)
	}
	createTestPost(t, db, "New", model.PostStatusDraft, editor.ID, "")
	if got := show(); got != 1 {
		t.Errorf("total = %d; want 1 immediately after the insert", got)
	}
}

func TestDashboardRequiresModerator(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	viewer := createTestUser(t, db, "viewer", model.RoleViewer)
	h := NewDashboardHandler(sm, testModerationService(db), testAccountService(db), service.NewEventService(db))

	req := requestWithUser(httptest.NewRequest(http.MethodGet, redirectAdmin, nil), viewer)
	rr := httptest.NewRecorder()
	h.Show(rr, req)

	assertStatus(t, rr.Code, http.StatusForbidden)
}
