// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/store"
	"github.com/olegiv/oblog-go/internal/util"
)

// PostsPerPage is the fixed page size for post listings.
const PostsPerPage = 10

// MaxTitleLength is the maximum allowed post title length.
const MaxTitleLength = 200

// Post sort orders.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// ModerationService orchestrates post listing, submission, and bulk
// state transitions. All moderation operations require an editor or
// admin capability; submission is open to every tier subject to the
// anonymous guard.
type ModerationService struct {
	queries  *store.Queries
	roles    *RoleService
	guard    *SubmissionGuard
	policy   *bluemonday.Policy
	onChange func(ctx context.Context) // invalidates the public listing cache
}

// NewModerationService creates a new ModerationService.
func NewModerationService(db *sql.DB, roles *RoleService, guard *SubmissionGuard) *ModerationService {
	return &ModerationService{
		queries: store.New(db),
		roles:   roles,
		guard:   guard,
		policy:  bluemonday.UGCPolicy(),
	}
}

// OnChange registers a hook invoked after any post mutation.
func (s *ModerationService) OnChange(fn func(ctx context.Context)) {
	s.onChange = fn
}

func (s *ModerationService) notifyChange(ctx context.Context) {
	if s.onChange != nil {
		s.onChange(ctx)
	}
}

// ListOptions selects, orders, and pages a post listing.
type ListOptions struct {
	Search string // Substring match on title
	Status string // Exact status filter; empty for all
	Sort   string // SortNewest (default) or SortOldest
	Page   int    // 1-based; out-of-range values clamp
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts      []model.Post
	Page       int
	TotalPages int
	Total      int64
}

// ListPosts returns a page of posts for moderation. Requires an editor
// or admin capability.
func (s *ModerationService) ListPosts(ctx context.Context, actor *model.User, opts ListOptions) (PostPage, error) {
	if !s.roles.CanModerate(actor) {
		return PostPage{}, ErrPermissionDenied
	}
	return s.listPosts(ctx, opts)
}

// ListPublished returns a page of published posts, newest first. This
// is the public read path and requires no capability.
func (s *ModerationService) ListPublished(ctx context.Context, page int) (PostPage, error) {
	return s.listPosts(ctx, ListOptions{Status: model.PostStatusPublished, Page: page})
}

func (s *ModerationService) listPosts(ctx context.Context, opts ListOptions) (PostPage, error) {
	if opts.Status != "" && !model.IsValidPostStatus(opts.Status) {
		return PostPage{}, ValidationErrors{"status": "Invalid status"}
	}

	params := store.ListPostsParams{
		TitleSearch: strings.TrimSpace(opts.Search),
		Status:      opts.Status,
		OldestFirst: opts.Sort == SortOldest,
	}

	total, err := s.queries.CountPosts(ctx, params)
	if err != nil {
		return PostPage{}, fmt.Errorf("counting posts: %w", err)
	}

	page, totalPages := ClampPage(opts.Page, total, PostsPerPage)
	params.Limit = PostsPerPage
	params.Offset = int64((page - 1) * PostsPerPage)

	posts, err := s.queries.ListPosts(ctx, params)
	if err != nil {
		return PostPage{}, fmt.Errorf("listing posts: %w", err)
	}

	return PostPage{Posts: posts, Page: page, TotalPages: totalPages, Total: total}, nil
}

// ClampPage normalizes a 1-based page number against the total item
// count. Out-of-range pages clamp to the nearest valid page; the result
// is always within [1, totalPages].
func ClampPage(page int, totalItems int64, perPage int) (clamped, totalPages int) {
	totalPages = int((totalItems + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, totalPages
}

// SubmitPostInput holds the fields of a post submission.
type SubmitPostInput struct {
	Title  string
	Body   string
	Image  string // Relative image reference, optional
	Status string // Defaults to draft
}

func (s *ModerationService) validatePostInput(in *SubmitPostInput) error {
	errs := make(ValidationErrors)

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		errs["title"] = "Title is required"
	} else if len(in.Title) > MaxTitleLength {
		errs["title"] = fmt.Sprintf("Title must be at most %d characters", MaxTitleLength)
	}

	if strings.TrimSpace(in.Body) == "" {
		errs["body"] = "Content is required"
	}

	if in.Status == "" {
		in.Status = model.PostStatusDraft
	} else if !model.IsValidPostStatus(in.Status) {
		errs["status"] = "Invalid status"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SubmitPost creates a post. An authenticated author is recorded on the
// post; an anonymous submission records the origin address instead and
// is subject to the submission guard. The two attributions are mutually
// exclusive by construction.
func (s *ModerationService) SubmitPost(ctx context.Context, author *model.User, address string, in SubmitPostInput) (model.Post, error) {
	if err := s.guard.CheckAndAdmit(ctx, address, author != nil); err != nil {
		return model.Post{}, err
	}

	if err := s.validatePostInput(&in); err != nil {
		return model.Post{}, err
	}

	var authorID sql.NullInt64
	var ipAddress sql.NullString
	if author != nil {
		authorID = util.NullInt64FromValue(author.ID)
	} else {
		ipAddress = util.NullStringFromValue(address)
	}

	now := time.Now()
	post, err := s.queries.CreatePost(ctx, store.CreatePostParams{
		Title:     in.Title,
		Slug:      util.Slugify(in.Title),
		Body:      s.policy.Sanitize(in.Body),
		Image:     util.NullStringFromValue(in.Image),
		Status:    in.Status,
		AuthorID:  authorID,
		IPAddress: ipAddress,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Post{}, fmt.Errorf("creating post: %w", err)
	}

	s.notifyChange(ctx)
	slog.Info("post created", "post_id", post.ID, "status", post.Status, "anonymous", post.IsAnonymous())
	return post, nil
}

// GetPost returns a single post.
func (s *ModerationService) GetPost(ctx context.Context, id int64) (model.Post, error) {
	post, err := s.queries.GetPostByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, fmt.Errorf("getting post: %w", err)
	}
	return post, nil
}

// UpdatePost edits a post's fields. Requires an editor or admin
// capability. Attribution and creation time are immutable.
func (s *ModerationService) UpdatePost(ctx context.Context, actor *model.User, id int64, in SubmitPostInput) (model.Post, error) {
	if !s.roles.CanModerate(actor) {
		return model.Post{}, ErrPermissionDenied
	}

	if err := s.validatePostInput(&in); err != nil {
		return model.Post{}, err
	}

	post, err := s.queries.UpdatePost(ctx, store.UpdatePostParams{
		Title:     in.Title,
		Slug:      util.Slugify(in.Title),
		Body:      s.policy.Sanitize(in.Body),
		Image:     util.NullStringFromValue(in.Image),
		Status:    in.Status,
		UpdatedAt: time.Now(),
		ID:        id,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, fmt.Errorf("updating post: %w", err)
	}

	s.notifyChange(ctx)
	return post, nil
}

// DeletePost removes a single post. Requires an editor or admin capability.
func (s *ModerationService) DeletePost(ctx context.Context, actor *model.User, id int64) error {
	if !s.roles.CanModerate(actor) {
		return ErrPermissionDenied
	}

	if err := s.queries.DeletePost(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting post: %w", err)
	}

	s.notifyChange(ctx)
	return nil
}

// SetStatus transitions a single post to status. Any status is
// reachable from any other. Requires an editor or admin capability.
func (s *ModerationService) SetStatus(ctx context.Context, actor *model.User, id int64, status string) error {
	if !s.roles.CanModerate(actor) {
		return ErrPermissionDenied
	}
	if !model.IsValidPostStatus(status) {
		return ValidationErrors{"status": "Invalid status"}
	}

	if err := s.queries.SetPostStatus(ctx, id, status, time.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("setting post status: %w", err)
	}

	s.notifyChange(ctx)
	slog.Info("post status set", "post_id", id, "status", status)
	return nil
}

// BulkSetStatus transitions every post in ids to status. Any status is
// reachable from any other. Ids without a matching row are skipped
// silently; an empty set is rejected. Returns the number of posts changed.
func (s *ModerationService) BulkSetStatus(ctx context.Context, actor *model.User, ids []int64, status string) (int64, error) {
	if !s.roles.CanModerate(actor) {
		return 0, ErrPermissionDenied
	}
	if len(ids) == 0 {
		return 0, ErrNothingSelected
	}
	if !model.IsValidPostStatus(status) {
		return 0, ValidationErrors{"status": "Invalid status"}
	}

	changed, err := s.queries.SetPostsStatus(ctx, ids, status, time.Now())
	if err != nil {
		return 0, fmt.Errorf("bulk status update: %w", err)
	}

	s.notifyChange(ctx)
	slog.Info("bulk status applied", "status", status, "selected", len(ids), "changed", changed)
	return changed, nil
}

// BulkDelete removes every post in ids. Ids without a matching row are
// skipped silently; an empty set is rejected. Returns the number deleted.
func (s *ModerationService) BulkDelete(ctx context.Context, actor *model.User, ids []int64) (int64, error) {
	if !s.roles.CanModerate(actor) {
		return 0, ErrPermissionDenied
	}
	if len(ids) == 0 {
		return 0, ErrNothingSelected
	}

	deleted, err := s.queries.DeletePosts(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}

	s.notifyChange(ctx)
	slog.Info("bulk delete applied", "selected", len(ids), "deleted", deleted)
	return deleted, nil
}

// StatusSummary returns fresh per-status post counts for the dashboard.
// Counts are read on every call; the listing cache is not consulted.
func (s *ModerationService) StatusSummary(ctx context.Context, actor *model.User) (model.PostStatusSummary, error) {
	if !s.roles.CanModerate(actor) {
		return model.PostStatusSummary{}, ErrPermissionDenied
	}

	var summary model.PostStatusSummary
	var err error

	if summary.Draft, err = s.queries.CountPostsByStatus(ctx, model.PostStatusDraft); err != nil {
		return model.PostStatusSummary{}, fmt.Errorf("counting drafts: %w", err)
	}
	if summary.Pending, err = s.queries.CountPostsByStatus(ctx, model.PostStatusPending); err != nil {
		return model.PostStatusSummary{}, fmt.Errorf("counting pending: %w", err)
	}
	if summary.Published, err = s.queries.CountPostsByStatus(ctx, model.PostStatusPublished); err != nil {
		return model.PostStatusSummary{}, fmt.Errorf("counting published: %w", err)
	}
	summary.Total = summary.Draft + summary.Pending + summary.Published

	return summary, nil
}
