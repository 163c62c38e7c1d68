// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/olegiv/oblog-go/internal/cache"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/notify"
	"github.com/olegiv/oblog-go/internal/service"
)

// listingCacheTTL bounds how stale the public listing may get between
// invalidations.
const listingCacheTTL = 5 * time.Minute

// PublicHandler serves the unauthenticated surface: the published-post
// listing, post detail, and the contact form.
type PublicHandler struct {
	sessionManager *scs.SessionManager
	moderation     *service.ModerationService
	listingCache   *cache.TypedCache[service.PostPage]
	dispatcher     *notify.Dispatcher
	markdown       goldmark.Markdown
	policy         *bluemonday.Policy
}

// NewPublicHandler creates a new PublicHandler. The dispatcher may be
// nil when contact notifications are not configured.
func NewPublicHandler(sm *scs.SessionManager, moderation *service.ModerationService, c cache.Cacher, dispatcher *notify.Dispatcher) *PublicHandler {
	return &PublicHandler{
		sessionManager: sm,
		moderation:     moderation,
		listingCache:   cache.NewTypedCache[service.PostPage](c, listingCacheTTL),
		dispatcher:     dispatcher,
		markdown:       goldmark.New(),
		policy:         bluemonday.UGCPolicy(),
	}
}

// PostListingCachePrefix is the cache key prefix for published-post
// listings. Post mutations invalidate everything under it.
const PostListingCachePrefix = "posts:"

// listingCacheKey returns the cache key for one listing page.
func listingCacheKey(page int) string {
	return fmt.Sprintf("%spage:%d", PostListingCachePrefix, page)
}

// Home serves the homepage: page 1 of the published listing.
func (h *PublicHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, 1)
}

// Posts serves the published-post listing with ?page=N pagination.
func (h *PublicHandler) Posts(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, formPage(r))
}

func (h *PublicHandler) listPage(w http.ResponseWriter, r *http.Request, page int) {
	result, err := h.listingCache.GetOrSet(r.Context(), listingCacheKey(page), func() (*service.PostPage, error) {
		p, err := h.moderation.ListPublished(r.Context(), page)
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		logAndInternalError(w, "failed to list published posts", "error", err)
		return
	}

	data := map[string]any{
		"posts":      result.Posts,
		"pagination": BuildPagination(result.Page, result.TotalPages, result.Total, service.PostsPerPage, RoutePosts, r.URL.Query()),
	}
	if flash, flashType := popFlash(r, h.sessionManager); flash != "" {
		data["flash"] = flash
		data["flash_type"] = flashType
	}
	writeJSONSuccess(w, data)
}

// PostDetail serves a single published post with its body rendered
// from markdown to sanitized HTML.
func (h *PublicHandler) PostDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	post, err := h.moderation.GetPost(r.Context(), id)
	if err != nil {
		jsonServiceError(w, r, err)
		return
	}
	// Unpublished posts are only visible through moderation
	if !post.IsPublished() {
		writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(post.Body), &buf); err != nil {
		logAndInternalError(w, "failed to render post body", "error", err, "post_id", post.ID)
		return
	}

	writeJSONSuccess(w, map[string]any{
		"post": post,
		"html": h.policy.Sanitize(buf.String()),
	})
}

// Contact accepts the contact form and hands the message to the
// notification dispatcher. Delivery is fire-and-forget: the visitor
// gets a success response as soon as the message is queued.
func (h *PublicHandler) Contact(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.sessionManager, RouteContact) {
		return
	}

	msg := model.ContactMessage{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Email:   strings.TrimSpace(r.FormValue("email")),
		Subject: strings.TrimSpace(r.FormValue("subject")),
		Message: strings.TrimSpace(r.FormValue("message")),
	}
	if msg.Name == "" || msg.Email == "" || msg.Message == "" {
		flashError(w, r, h.sessionManager, RouteContact, "Name, email and message are required")
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(notify.EventContactMessage, map[string]any{
			"name":    msg.Name,
			"email":   msg.Email,
			"subject": msg.Subject,
			"message": msg.Message,
		})
	}

	flashSuccess(w, r, h.sessionManager, RouteRoot, "Thanks, your message has been sent")
}
