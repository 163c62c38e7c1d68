// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/oblog-go/internal/model"
)

func newTestQueries(t *testing.T) *Queries {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Schema matches migrations
	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			is_staff BOOLEAN NOT NULL DEFAULT 0,
			is_superuser BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME
		);
		CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			slug TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			image TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			author_id INTEGER,
			ip_address TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE preferences (
			user_id INTEGER PRIMARY KEY,
			notifications BOOLEAN NOT NULL DEFAULT 1,
			auto_backup BOOLEAN NOT NULL DEFAULT 0,
			dark_mode BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL DEFAULT 'info',
			category TEXT NOT NULL DEFAULT 'system',
			message TEXT NOT NULL,
			user_id INTEGER,
			ip_address TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)

	return New(db)
}

func insertUser(t *testing.T, q *Queries, username string, role model.Role) model.User {
	t.Helper()

	isStaff, isSuperuser := model.StaffFlags(role)
	now := time.Now()
	user, err := q.CreateUser(context.Background(), CreateUserParams{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
		IsStaff:      isStaff,
		IsSuperuser:  isSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	return user
}

func insertPost(t *testing.T, q *Queries, title, status string, createdAt time.Time) model.Post {
	t.Helper()

	post, err := q.CreatePost(context.Background(), CreatePostParams{
		Title:     title,
		Slug:      title,
		Body:      "body",
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	require.NoError(t, err)
	return post
}

func TestCreateAndGetUser(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	created := insertUser(t, q, "alice", model.RoleEditor)
	assert.True(t, created.IsStaff)
	assert.False(t, created.IsSuperuser)

	byID, err := q.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := q.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = q.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateUserUniqueUsername(t *testing.T) {
	q := newTestQueries(t)

	insertUser(t, q, "alice", model.RoleViewer)

	now := time.Now()
	_, err := q.CreateUser(context.Background(), CreateUserParams{
		Username:     "alice",
		Email:        "second@example.com",
		PasswordHash: "x",
		Role:         model.RoleViewer,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestListUsers(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	insertUser(t, q, "alice", model.RoleAdmin)
	insertUser(t, q, "bob", model.RoleEditor)
	insertUser(t, q, "carol", model.RoleViewer)

	all, err := q.ListUsers(ctx, ListUsersParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Username substring search
	found, err := q.ListUsers(ctx, ListUsersParams{Search: "bo", Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].Username)

	count, err := q.CountUsers(ctx, "bo")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	admins, err := q.CountUsersByRole(ctx, model.RoleAdmin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, admins)
}

func TestUpdateUserRole(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	user := insertUser(t, q, "alice", model.RoleViewer)

	updated, err := q.UpdateUserRole(ctx, UpdateUserRoleParams{
		Role:        model.RoleAdmin,
		IsStaff:     true,
		IsSuperuser: true,
		UpdatedAt:   time.Now(),
		ID:          user.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	assert.True(t, updated.IsStaff)
	assert.True(t, updated.IsSuperuser)

	_, err = q.UpdateUserRole(ctx, UpdateUserRoleParams{
		Role: model.RoleViewer, UpdatedAt: time.Now(), ID: 999,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteUser(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	user := insertUser(t, q, "alice", model.RoleViewer)
	require.NoError(t, q.DeleteUser(ctx, user.ID))

	_, err := q.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateAndUpdatePost(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	post := insertPost(t, q, "Original", "draft", time.Now())

	updated, err := q.UpdatePost(ctx, UpdatePostParams{
		Title:     "Edited",
		Slug:      "edited",
		Body:      "new body",
		Status:    "pending",
		UpdatedAt: time.Now(),
		ID:        post.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "pending", updated.Status)
	// Creation time is immutable through updates
	assert.Equal(t, post.CreatedAt.Unix(), updated.CreatedAt.Unix())
}

func TestSetPostsStatusSkipsMissing(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	a := insertPost(t, q, "A", "draft", time.Now())
	c := insertPost(t, q, "C", "draft", time.Now())

	affected, err := q.SetPostsStatus(ctx, []int64{a.ID, 999, c.ID}, "published", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	published, err := q.CountPostsByStatus(ctx, "published")
	require.NoError(t, err)
	assert.EqualValues(t, 2, published)
}

func TestSetPostStatus(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	post := insertPost(t, q, "A", "pending", time.Now())

	require.NoError(t, q.SetPostStatus(ctx, post.ID, "published", time.Now()))
	stored, err := q.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "published", stored.Status)

	assert.ErrorIs(t, q.SetPostStatus(ctx, 999, "draft", time.Now()), sql.ErrNoRows)
}

func TestDeletePostsSkipsMissing(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	a := insertPost(t, q, "A", "draft", time.Now())
	b := insertPost(t, q, "B", "draft", time.Now())

	affected, err := q.DeletePosts(ctx, []int64{a.ID, 999, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	affected, err = q.DeletePosts(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestListPostsFilterAndSort(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	insertPost(t, q, "Go Tips", "published", base)
	insertPost(t, q, "Go Tricks", "published", base.Add(time.Hour))
	insertPost(t, q, "Unrelated", "draft", base.Add(2*time.Hour))

	// Status filter with oldest-first ordering
	posts, err := q.ListPosts(ctx, ListPostsParams{Status: "published", OldestFirst: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Go Tips", posts[0].Title)
	assert.Equal(t, "Go Tricks", posts[1].Title)

	// Default ordering is newest first
	posts, err = q.ListPosts(ctx, ListPostsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "Unrelated", posts[0].Title)

	// Case-insensitive title substring
	posts, err = q.ListPosts(ctx, ListPostsParams{TitleSearch: "go t", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	count, err := q.CountPosts(ctx, ListPostsParams{Status: "published"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestListPostsSearchMatchesLiterally(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	now := time.Now()
	insertPost(t, q, "100% Go", "draft", now)
	insertPost(t, q, "snake_case", "draft", now)
	insertPost(t, q, "plain", "draft", now)

	// LIKE wildcards in the search term match literally
	posts, err := q.ListPosts(ctx, ListPostsParams{TitleSearch: "%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "100% Go", posts[0].Title)

	posts, err = q.ListPosts(ctx, ListPostsParams{TitleSearch: "_", Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "snake_case", posts[0].Title)

	count, err := q.CountPosts(ctx, ListPostsParams{TitleSearch: "%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestListUsersSearchMatchesLiterally(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	insertUser(t, q, "under_score", model.RoleViewer)
	insertUser(t, q, "plain", model.RoleViewer)

	users, err := q.ListUsers(ctx, ListUsersParams{Search: "_", Limit: 10})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "under_score", users[0].Username)

	count, err := q.CountUsers(ctx, "%")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountAnonymousPostsByAddress(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	user := insertUser(t, q, "alice", model.RoleViewer)
	now := time.Now()

	for i := 0; i < 2; i++ {
		_, err := q.CreatePost(ctx, CreatePostParams{
			Title:     "anon",
			Status:    "pending",
			IPAddress: sql.NullString{String: "198.51.100.9", Valid: true},
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.NoError(t, err)
	}
	// Authored posts never count toward an address
	_, err := q.CreatePost(ctx, CreatePostParams{
		Title:     "authored",
		Status:    "published",
		AuthorID:  sql.NullInt64{Int64: user.ID, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	count, err := q.CountAnonymousPostsByAddress(ctx, "198.51.100.9")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = q.CountAnonymousPostsByAddress(ctx, "198.51.100.10")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPreferenceUpsert(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	user := insertUser(t, q, "alice", model.RoleViewer)

	// No stored record yet
	_, err := q.GetPreference(ctx, user.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	pref := model.Preference{UserID: user.ID, Notifications: true, DarkMode: true, UpdatedAt: time.Now()}
	require.NoError(t, q.UpsertPreference(ctx, pref))

	stored, err := q.GetPreference(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.DarkMode)

	// Second write replaces the record
	pref.DarkMode = false
	require.NoError(t, q.UpsertPreference(ctx, pref))
	stored, err = q.GetPreference(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.DarkMode)
}

func TestEvents(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, q.CreateEvent(ctx, CreateEventParams{
			Level:     model.EventLevelInfo,
			Category:  model.EventCategoryAuth,
			Message:   msg,
			Metadata:  "{}",
			CreatedAt: time.Now(),
		}))
	}

	events, err := q.ListRecentEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
