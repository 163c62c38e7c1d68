// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/olegiv/oblog-go/internal/auth"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
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
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

// createTestUser inserts a user with the flags derived from role.
func createTestUser(t *testing.T, db *sql.DB, username string, role model.Role) model.User {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	isStaff, isSuperuser := model.StaffFlags(role)
	now := time.Now()
	user, err := store.New(db).CreateUser(context.Background(), store.CreateUserParams{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsStaff:      isStaff,
		IsSuperuser:  isSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestPost inserts a post. Pass authorID 0 with an address for an
// anonymous post.
func createTestPost(t *testing.T, db *sql.DB, title, status string, authorID int64, address string) model.Post {
	t.Helper()

	var author sql.NullInt64
	var ip sql.NullString
	if authorID != 0 {
		author = sql.NullInt64{Int64: authorID, Valid: true}
	} else {
		ip = sql.NullString{String: address, Valid: address != ""}
	}

	now := time.Now()
	post, err := store.New(db).CreatePost(context.Background(), store.CreatePostParams{
		Title:     title,
		Slug:      title,
		Body:      "body",
		Status:    status,
		AuthorID:  author,
		IPAddress: ip,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}
	return post
}

func newModerationService(t *testing.T, db *sql.DB) *ModerationService {
	t.Helper()
	return NewModerationService(db, NewRoleService(db), NewSubmissionGuard(db))
}

func newAccountService(t *testing.T, db *sql.DB) *AccountService {
	t.Helper()
	return NewAccountService(db, NewRoleService(db), NewEventService(db))
}
