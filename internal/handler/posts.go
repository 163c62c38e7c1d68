// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/oblog-go/internal/imaging"
	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/util"
)

// PostsHandler handles post submission and the moderation queue.
type PostsHandler struct {
	sessionManager *scs.SessionManager
	moderation     *service.ModerationService
	eventService   *service.EventService
	processor      *imaging.Processor
}

// NewPostsHandler creates a new PostsHandler.
func NewPostsHandler(sm *scs.SessionManager, moderation *service.ModerationService, events *service.EventService, processor *imaging.Processor) *PostsHandler {
	return &PostsHandler{
		sessionManager: sm,
		moderation:     moderation,
		eventService:   events,
		processor:      processor,
	}
}

// Submit accepts a post from a visitor or a signed-in user. Visitor
// submissions carry the client address and are quota-limited; all
// public submissions land in the moderation queue as pending.
func (h *PostsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
		if err := r.ParseForm(); err != nil {
			flashError(w, r, h.sessionManager, RoutePosts, "Invalid form data")
			return
		}
	}

	user := middleware.GetUser(r)

	in := service.SubmitPostInput{
		Title:  r.FormValue("title"),
		Body:   r.FormValue("body"),
		Status: model.PostStatusPending,
	}

	imagePath, ok := h.saveUpload(w, r)
	if !ok {
		return
	}
	in.Image = imagePath

	post, err := h.moderation.SubmitPost(r.Context(), user, util.ClientIP(r), in)
	if err != nil {
		if in.Image != "" {
			if err := h.processor.Delete(in.Image); err != nil {
				slog.Error("failed to remove orphaned upload", "error", err, "path", in.Image)
			}
		}
		redirectServiceError(w, r, h.sessionManager, RoutePosts, err)
		return
	}

	h.eventService.LogPostEvent(r.Context(), model.EventLevelInfo, "Post submitted", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"post_id": post.ID, "title": post.Title})
	flashSuccess(w, r, h.sessionManager, RouteRoot, "Your post has been submitted for review")
}

// saveUpload stores an optional "image" form file and returns its
// relative reference. Returns ok=false after responding when the
// upload is present but unusable.
func (h *PostsHandler) saveUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.processor == nil || r.MultipartForm == nil {
		return "", true
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", true
		}
		flashError(w, r, h.sessionManager, RoutePosts, "Invalid image upload")
		return "", false
	}
	defer func() { _ = file.Close() }()

	result, err := h.processor.SavePostImage(file)
	if err != nil {
		slog.Warn("image upload rejected", "error", err)
		flashError(w, r, h.sessionManager, RoutePosts, "Unsupported or corrupt image file")
		return "", false
	}
	return result.Path, true
}

// Manage serves the moderation queue: title search, status filter,
// newest/oldest sort, paginated.
func (h *PostsHandler) Manage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{
		Search: q.Get("q"),
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
		Page:   formPage(r),
	}

	result, err := h.moderation.ListPosts(r.Context(), middleware.GetUser(r), opts)
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"posts":      result.Posts,
		"pagination": BuildPagination(result.Page, result.TotalPages, result.Total, service.PostsPerPage, redirectAdminPosts, q),
	}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}

// Bulk applies a moderation action to a set of selected posts. Posts
// deleted by another moderator since the selection are skipped.
func (h *PostsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, redirectAdminPosts) {
		return
	}

	action := r.FormValue("action")
	ids := parseIDList(r.Form["ids"])
	user := middleware.GetUser(r)

	var affected int64
	var err error
	switch action {
	case "publish":
		affected, err = h.moderation.BulkSetStatus(r.Context(), user, ids, model.PostStatusPublished)
	case "pending":
		affected, err = h.moderation.BulkSetStatus(r.Context(), user, ids, model.PostStatusPending)
	case "draft":
		affected, err = h.moderation.BulkSetStatus(r.Context(), user, ids, model.PostStatusDraft)
	case "delete":
		affected, err = h.moderation.BulkDelete(r.Context(), user, ids)
	default:
		flashError(w, r, h.sessionManager, redirectAdminPosts, "Unknown action")
		return
	}
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectAdminPosts, err)
		return
	}

	h.eventService.LogPostEvent(r.Context(), model.EventLevelInfo, "Bulk moderation action", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"action": action, "selected": len(ids), "affected": affected})
	flashSuccess(w, r, h.sessionManager, redirectAdminPosts, fmt.Sprintf("%d post(s) updated", affected))
}

// Status transitions a single post from the moderation queue.
func (h *PostsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	backURL := fmt.Sprintf(redirectAdminPostsID, id)

	if !parseFormOrRedirect(w, r, h.sessionManager, backURL) {
		return
	}
	status := r.FormValue("status")

	if err := h.moderation.SetStatus(r.Context(), middleware.GetUser(r), id, status); err != nil {
		redirectServiceError(w, r, h.sessionManager, backURL, err)
		return
	}

	h.eventService.LogPostEvent(r.Context(), model.EventLevelInfo, "Post status set", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"post_id": id, "status": status})
	flashSuccess(w, r, h.sessionManager, redirectAdminPosts, "Post marked "+status)
}

// Update edits a post from the moderation queue.
func (h *PostsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	backURL := fmt.Sprintf(redirectAdminPostsID, id)

	if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
		if err := r.ParseForm(); err != nil {
			flashError(w, r, h.sessionManager, backURL, "Invalid form data")
			return
		}
	}

	in := service.SubmitPostInput{
		Title:  r.FormValue("title"),
		Body:   r.FormValue("body"),
		Image:  r.FormValue("image_path"),
		Status: r.FormValue("status"),
	}
	imagePath, ok := h.saveUpload(w, r)
	if !ok {
		return
	}
	if imagePath != "" {
		in.Image = imagePath
	}

	post, err := h.moderation.UpdatePost(r.Context(), middleware.GetUser(r), id, in)
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, backURL, err)
		return
	}

	h.eventService.LogPostEvent(r.Context(), model.EventLevelInfo, "Post updated", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"post_id": post.ID})
	flashSuccess(w, r, h.sessionManager, redirectAdminPosts, "Post updated")
}

// Delete removes a single post and its stored image.
func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	post, err := h.moderation.GetPost(r.Context(), id)
	if err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectAdminPosts, err)
		return
	}

	if err := h.moderation.DeletePost(r.Context(), middleware.GetUser(r), id); err != nil {
		redirectServiceError(w, r, h.sessionManager, redirectAdminPosts, err)
		return
	}

	if post.Image.Valid && post.Image.String != "" && h.processor != nil {
		if err := h.processor.Delete(post.Image.String); err != nil {
			slog.Error("failed to remove post image", "error", err, "path", post.Image.String)
		}
	}

	h.eventService.LogPostEvent(r.Context(), model.EventLevelInfo, "Post deleted", middleware.GetUserIDPtr(r), util.ClientIP(r), map[string]any{"post_id": id})
	flashSuccess(w, r, h.sessionManager, redirectAdminPosts, "Post deleted")
}

// parseIDList converts form values into ids, dropping anything that is
// not a positive integer.
func parseIDList(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
