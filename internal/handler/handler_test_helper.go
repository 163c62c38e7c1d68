package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/olegiv/oblog-go/internal/auth"
	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/store"
)

// testDB creates an in-memory SQLite database with the required schema for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
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
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testSessionManager creates a session manager for testing.
func testSessionManager(t *testing.T) *scs.SessionManager {
	t.Helper()
	sm := scs.New()
	sm.Lifetime = 24 * time.Hour
	return sm
}

// createTestUser creates a user with the flags derived from role. The
// password is always "password123".
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

func testModerationService(db *sql.DB) *service.ModerationService {
	return service.NewModerationService(db, service.NewRoleService(db), service.NewSubmissionGuard(db))
}

func testAccountService(db *sql.DB) *service.AccountService {
	return service.NewAccountService(db, service.NewRoleService(db), service.NewEventService(db))
}

// requestWithURLParams adds chi URL parameters to a request.
func requestWithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// requestWithSession wraps a request with session context.
func requestWithSession(sm *scs.SessionManager, r *http.Request) *http.Request {
	ctx, err := sm.Load(r.Context(), "")
	if err != nil {
		return r
	}
	return r.WithContext(ctx)
}

// requestWithUser places a signed-in user in the request context the way
// the user-loading middleware does.
func requestWithUser(r *http.Request, user model.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyUser, user))
}

// formatID renders an id the way a form posts it.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// assertStatus checks if the response status code matches the expected value.
func assertStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d; want %d", got, want)
	}
}

// assertRedirect checks a 303 redirect target.
func assertRedirect(t *testing.T, got *http.Response, want string) {
	t.Helper()
	if got.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d; want %d", got.StatusCode, http.StatusSeeOther)
	}
	if loc := got.Header.Get("Location"); loc != want {
		t.Errorf("redirect = %q; want %q", loc, want)
	}
}
