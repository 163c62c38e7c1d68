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

func TestSubmitAnonymous(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithSession(sm, postForm(t, RoutePosts, url.Values{
		"title": {"A Visitor Writes"},
		"body":  {"hello from the street"},
	}))
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	assertRedirect(t, rr.Result(), RouteRoot)

	var status, ip string
	var authorID *int64
	err := db.QueryRow(`SELECT status, ip_address, author_id FROM posts WHERE title = 'A Visitor Writes'`).Scan(&status, &ip, &authorID)
	if err != nil {
		t.Fatalf("post not created: %v", err)
	}
	if status != model.PostStatusPending {
		t.Errorf("status = %s; want pending", status)
	}
	if ip != "203.0.113.7" {
		t.Errorf("ip_address = %s; want the client address", ip)
	}
	if authorID != nil {
		t.Error("anonymous post has an author")
	}
}

func TestSubmitAuthenticated(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	user := createTestUser(t, db, "alice", model.RoleViewer)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithUser(requestWithSession(sm, postForm(t, RoutePosts, url.Values{
		"title": {"Signed Work"},
		"body":  {"authored content"},
	})), user)
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	assertRedirect(t, rr.Result(), RouteRoot)

	var authorID int64
	var ip *string
	if err := db.QueryRow(`SELECT author_id, ip_address FROM posts WHERE title = 'Signed Work'`).Scan(&authorID, &ip); err != nil {
		t.Fatalf("post not created: %v", err)
	}
	if authorID != user.ID {
		t.Errorf("author_id = %d; want %d", authorID, user.ID)
	}
	if ip != nil {
		t.Error("authored post carries an ip_address")
	}
}

func TestSubmitQuotaExceeded(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	for i := 0; i < service.AnonymousPostLimit; i++ {
		createTestPost(t, db, "old", model.PostStatusPending, 0, "203.0.113.7")
	}

	req := requestWithSession(sm, postForm(t, RoutePosts, url.Values{
		"title": {"One Too Many"},
		"body":  {"..."},
	}))
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	// The quota failure warns and points the visitor at authentication
	assertRedirect(t, rr.Result(), redirectLogin)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM posts WHERE title = 'One Too Many'`).Scan(&count)
	if count != 0 {
		t.Error("post was created despite the quota")
	}
}

func TestSubmitValidation(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithSession(sm, postForm(t, RoutePosts, url.Values{
		"title": {""},
		"body":  {"body without title"},
	}))
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	assertRedirect(t, rr.Result(), RoutePosts)
}

func TestManage(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	createTestPost(t, db, "Go Tips", model.PostStatusPublished, editor.ID, "")
	createTestPost(t, db, "Draft Notes", model.PostStatusDraft, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithUser(requestWithSession(sm, httptest.NewRequest(http.MethodGet, redirectAdminPosts+"?status=published", nil)), editor)
	rr := httptest.NewRecorder()
	h.Manage(rr, req)

	assertStatus(t, rr.Code, http.StatusOK)

	var body struct {
		Success bool `json:"success"`
		Posts   []struct {
			Title string `json:"title"`
		} `json:"posts"`
		Pagination Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if !body.Success {
		t.Error("success = false")
	}
	if len(body.Posts) != 1 || body.Posts[0].Title != "Go Tips" {
		t.Errorf("posts = %v; want only the published post", body.Posts)
	}
	if body.Pagination.TotalItems != 1 {
		t.Errorf("total items = %d; want 1", body.Pagination.TotalItems)
	}
}

func TestManageRequiresModerator(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	viewer := createTestUser(t, db, "viewer", model.RoleViewer)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithUser(httptest.NewRequest(http.MethodGet, redirectAdminPosts, nil), viewer)
	rr := httptest.NewRecorder()
	h.Manage(rr, req)

	assertStatus(t, rr.Code, http.StatusForbidden)
}

func TestBulk(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	a := createTestPost(t, db, "A", model.PostStatusDraft, editor.ID, "")
	c := createTestPost(t, db, "C", model.PostStatusDraft, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	// The id between A and C does not exist; it must be skipped, not fail
	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminPosts+"/bulk", url.Values{
		"action": {"publish"},
		"ids":    {formatID(a.ID), "99999", formatID(c.ID)},
	})), editor)
	rr := httptest.NewRecorder()
	h.Bulk(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminPosts)

	var published int
	_ = db.QueryRow(`SELECT COUNT(*) FROM posts WHERE status = 'published'`).Scan(&published)
	if published != 2 {
		t.Errorf("published = %d; want 2", published)
	}
}

func TestBulkNothingSelected(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminPosts+"/bulk", url.Values{
		"action": {"publish"},
	})), editor)
	rr := httptest.NewRecorder()
	h.Bulk(rr, req)

	// Rejected with a flash, not an error page
	assertRedirect(t, rr.Result(), redirectAdminPosts)
}

func TestBulkUnknownAction(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	p := createTestPost(t, db, "A", model.PostStatusDraft, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithUser(requestWithSession(sm, postForm(t, redirectAdminPosts+"/bulk", url.Values{
		"action": {"explode"},
		"ids":    {formatID(p.ID)},
	})), editor)
	rr := httptest.NewRecorder()
	h.Bulk(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminPosts)

	var status string
	_ = db.QueryRow(`SELECT status FROM posts WHERE id = ?`, p.ID).Scan(&status)
	if status != model.PostStatusDraft {
		t.Errorf("status = %s; unknown action must not mutate", status)
	}
}

func TestPostStatus(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	p := createTestPost(t, db, "Queued", model.PostStatusPending, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, redirectAdminPosts+"/status", url.Values{
		"status": {model.PostStatusPublished},
	})), editor), map[string]string{"id": formatID(p.ID)})
	rr := httptest.NewRecorder()
	h.Status(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminPosts)

	var status string
	_ = db.QueryRow(`SELECT status FROM posts WHERE id = ?`, p.ID).Scan(&status)
	if status != model.PostStatusPublished {
		t.Errorf("status = %s; want published", status)
	}
}

func TestPostStatusViewerDenied(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	viewer := createTestUser(t, db, "viewer", model.RoleViewer)
	p := createTestPost(t, db, "Queued", model.PostStatusPending, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, redirectAdminPosts+"/status", url.Values{
		"status": {model.PostStatusPublished},
	})), viewer), map[string]string{"id": formatID(p.ID)})
	rr := httptest.NewRecorder()
	h.Status(rr, req)

	assertRedirect(t, rr.Result(), RouteRoot)

	var status string
	_ = db.QueryRow(`SELECT status FROM posts WHERE id = ?`, p.ID).Scan(&status)
	if status != model.PostStatusPending {
		t.Errorf("status = %s; denied request must not mutate", status)
	}
}

func TestDeletePost(t *testing.T) {
	db := testDB(t)
	sm := testSessionManager(t)
	editor := createTestUser(t, db, "editor", model.RoleEditor)
	p := createTestPost(t, db, "Doomed", model.PostStatusDraft, editor.ID, "")
	h := NewPostsHandler(sm, testModerationService(db), service.NewEventService(db), nil)

	req := requestWithURLParams(requestWithUser(requestWithSession(sm, postForm(t, "/admin/posts/delete", nil)), editor), map[string]string{"id": formatID(p.ID)})
	rr := httptest.NewRecorder()
	h.Delete(rr, req)

	assertRedirect(t, rr.Result(), redirectAdminPosts)

	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM posts WHERE id = ?`, p.ID).Scan(&count)
	if count != 0 {
		t.Error("post still present after delete")
	}
}

func TestParseIDList(t *testing.T) {
	got := parseIDList([]string{"1", "x", "-4", "0", "42"})
	if len(got) != 2 || got[0] != 1 || got[1] != 42 {
		t.Errorf("parseIDList = %v; want [1 42]", got)
	}
}
