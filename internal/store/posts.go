// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/olegiv/oblog-go/internal/model"
)

const postColumns = `id, title, slug, body, image, status, author_id, ip_address, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (model.Post, error) {
	var p model.Post
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Image, &p.Status,
		&p.AuthorID, &p.IPAddress, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePostParams holds parameters for CreatePost.
type CreatePostParams struct {
	Title     string
	Slug      string
	Body      string
	Image     sql.NullString
	Status    string
	AuthorID  sql.NullInt64
	IPAddress sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreatePost inserts a post and returns the stored record.
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, slug, body, image, status, author_id, ip_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+postColumns,
		arg.Title, arg.Slug, arg.Body, arg.Image, arg.Status,
		arg.AuthorID, arg.IPAddress, arg.CreatedAt, arg.UpdatedAt)
	return scanPost(row)
}

// GetPostByID returns the post with the given id.
func (q *Queries) GetPostByID(ctx context.Context, id int64) (model.Post, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// UpdatePostParams holds parameters for UpdatePost.
type UpdatePostParams struct {
	Title     string
	Slug      string
	Body      string
	Image     sql.NullString
	Status    string
	UpdatedAt time.Time
	ID        int64
}

// UpdatePost updates a post's editable fields. The creation timestamp and
// author/address attribution are immutable.
func (q *Queries) UpdatePost(ctx context.Context, arg UpdatePostParams) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE posts
		SET title = ?, slug = ?, body = ?, image = ?, status = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+postColumns,
		arg.Title, arg.Slug, arg.Body, arg.Image, arg.Status, arg.UpdatedAt, arg.ID)
	return scanPost(row)
}

// DeletePost removes a post. Returns sql.ErrNoRows if no row matched.
func (q *Queries) DeletePost(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// idPlaceholders builds a "?, ?, ..." list and the matching args slice.
func idPlaceholders(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// DeletePosts removes every post in ids. Ids with no matching row are
// skipped. Returns the number of rows deleted.
func (q *Queries) DeletePosts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := idPlaceholders(ids)
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetPostStatus updates a single post's status. Returns sql.ErrNoRows
// if no row matched.
func (q *Queries) SetPostStatus(ctx context.Context, id int64, status string, updatedAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPostsStatus updates the status of every post in ids. Ids with no
// matching row are skipped. Returns the number of rows updated.
func (q *Queries) SetPostsStatus(ctx context.Context, ids []int64, status string, updatedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := idPlaceholders(ids)
	args = append([]any{status, updatedAt}, args...)
	res, err := q.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, updated_at = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPostsParams holds filter, sort, and pagination parameters for ListPosts.
type ListPostsParams struct {
	TitleSearch string // Case-insensitive substring match; empty matches all
	Status      string // Exact status match; empty matches all
	OldestFirst bool   // Default order is newest first
	Limit       int64
	Offset      int64
}

// ListPosts returns a page of posts matching the filter.
func (q *Queries) ListPosts(ctx context.Context, arg ListPostsParams) ([]model.Post, error) {
	order := "created_at DESC"
	if arg.OldestFirst {
		order = "created_at ASC"
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE (?1 = '' OR title LIKE '%' || ?1 || '%' ESCAPE '\')
		  AND (?2 = '' OR status = ?2)
		ORDER BY `+order+`
		LIMIT ?3 OFFSET ?4`,
		escapeLike(arg.TitleSearch), arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// CountPosts returns the number of posts matching the filter portion of arg.
func (q *Queries) CountPosts(ctx context.Context, arg ListPostsParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts
		WHERE (?1 = '' OR title LIKE '%' || ?1 || '%' ESCAPE '\')
		  AND (?2 = '' OR status = ?2)`,
		escapeLike(arg.TitleSearch), arg.Status).Scan(&count)
	return count, err
}

// CountPostsByStatus returns the number of posts with the given status.
func (q *Queries) CountPostsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE status = ?`, status).Scan(&count)
	return count, err
}

// CountAnonymousPostsByAddress returns the number of posts submitted
// without an author from the given address. The submission guard reads
// this on demand; no counter is persisted.
func (q *Queries) CountAnonymousPostsByAddress(ctx context.Context, address string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE author_id IS NULL AND ip_address = ?`,
		address).Scan(&count)
	return count, err
}
