// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"database/sql"
	"time"
)

// Post statuses
const (
	PostStatusDraft     = "draft"
	PostStatusPending   = "pending"
	PostStatusPublished = "published"
)

// PostStatuses contains all valid post statuses.
var PostStatuses = []string{PostStatusDraft, PostStatusPending, PostStatusPublished}

// IsValidPostStatus returns true if status is one of the known statuses.
func IsValidPostStatus(status string) bool {
	for _, s := range PostStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Post represents a blog post. A post created by an authenticated user
// carries AuthorID; an anonymous submission carries IPAddress instead.
// The two are never both set.
type Post struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Slug      string         `json:"slug"`
	Body      string         `json:"body"`
	Image     sql.NullString `json:"image,omitempty"`
	Status    string         `json:"status"`
	AuthorID  sql.NullInt64  `json:"author_id,omitempty"`
	IPAddress sql.NullString `json:"-"` // Submitter address, anonymous posts only
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsPublished returns true if the post is published.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// IsAnonymous returns true if the post was submitted without an
// authenticated author.
func (p *Post) IsAnonymous() bool {
	return !p.AuthorID.Valid
}

// PostStatusSummary holds per-status post counts for the dashboard.
type PostStatusSummary struct {
	Total     int64 `json:"total"`
	Draft     int64 `json:"draft"`
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
}
