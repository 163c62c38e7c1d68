// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/olegiv/oblog-go/internal/auth"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/store"
)

// UsersPerPage is the fixed page size for account listings.
const UsersPerPage = 10

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

// dummyHash is compared against when the username does not exist, so a
// missing account costs the same as a wrong password.
var dummyHash = func() string {
	h, err := auth.HashPassword("decoy")
	if err != nil {
		panic(err)
	}
	return h
}()

// ErrInvalidCredentials is returned by Authenticate for a wrong
// username or password. Callers present it without distinguishing
// which of the two failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// AccountService manages user accounts: authentication, self-service
// settings, and the admin-only account administration surface.
type AccountService struct {
	queries *store.Queries
	roles   *RoleService
	events  *EventService
}

// NewAccountService creates a new AccountService.
func NewAccountService(db *sql.DB, roles *RoleService, events *EventService) *AccountService {
	return &AccountService{
		queries: store.New(db),
		roles:   roles,
		events:  events,
	}
}

func validateUsername(username string, errs ValidationErrors) {
	if username == "" {
		errs["username"] = "Username is required"
	} else if !usernameRegex.MatchString(username) {
		errs["username"] = "Username must be 3-50 characters: letters, digits, dot, dash, underscore"
	}
}

func validateEmail(email string, errs ValidationErrors) {
	if email == "" {
		errs["email"] = "Email is required"
	} else if !strings.Contains(email, "@") || len(email) > 254 {
		errs["email"] = "Enter a valid email address"
	}
}

// Authenticate verifies credentials and records the login time. The
// stored hash is upgraded transparently when its parameters are stale.
func (s *AccountService) Authenticate(ctx context.Context, username, password, address string) (model.User, error) {
	user, err := s.queries.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, _ = auth.CheckPassword(password, dummyHash)
			return model.User{}, ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("loading user: %w", err)
	}

	ok, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.events.LogAuthEvent(ctx, model.EventLevelWarning, "failed login attempt", &user.ID, address, nil)
		return model.User{}, ErrInvalidCredentials
	}

	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			_ = s.queries.UpdateUserPassword(ctx, store.UpdateUserPasswordParams{
				ID:           user.ID,
				PasswordHash: hash,
				UpdatedAt:    time.Now(),
			})
		}
	}

	if err := s.queries.UpdateUserLastLogin(ctx, user.ID, time.Now()); err != nil {
		slog.Warn("recording last login failed", "user_id", user.ID, "error", err)
	}

	s.events.LogAuthEvent(ctx, model.EventLevelInfo, "user logged in", &user.ID, address, nil)
	return user, nil
}

// CreateUserInput holds the fields for creating an account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     model.Role
}

// Signup registers a self-service account. New signups always start as
// viewers regardless of the requested role.
func (s *AccountService) Signup(ctx context.Context, in CreateUserInput, address string) (model.User, error) {
	in.Role = model.RoleViewer
	user, err := s.createUser(ctx, in)
	if err != nil {
		return model.User{}, err
	}
	s.events.LogAuthEvent(ctx, model.EventLevelInfo, "user signed up", &user.ID, address, nil)
	return user, nil
}

// CreateUser creates an account with an explicit role. Requires the
// admin capability. The staff flags are derived from the role and
// written in the same statement.
func (s *AccountService) CreateUser(ctx context.Context, actor *model.User, in CreateUserInput) (model.User, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return model.User{}, ErrPermissionDenied
	}
	user, err := s.createUser(ctx, in)
	if err != nil {
		return model.User{}, err
	}
	s.events.LogUserEvent(ctx, model.EventLevelInfo,
		fmt.Sprintf("user %q created with role %s", user.Username, user.Role), &actor.ID, "", nil)
	return user, nil
}

func (s *AccountService) createUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	errs := make(ValidationErrors)
	validateUsername(in.Username, errs)
	validateEmail(in.Email, errs)
	if len(in.Password) < MinPasswordLength {
		errs["password"] = fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	}
	if !in.Role.IsAssignable() {
		errs["role"] = "Invalid role"
	}
	if len(errs) > 0 {
		return model.User{}, errs
	}

	if _, err := s.queries.GetUserByUsername(ctx, in.Username); err == nil {
		return model.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("checking username: %w", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hashing password: %w", err)
	}

	isStaff, isSuperuser := model.StaffFlags(in.Role)
	now := time.Now()
	user, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsStaff:      isStaff,
		IsSuperuser:  isSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return model.User{}, ErrDuplicateUsername
		}
		return model.User{}, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// EditUserInput holds the editable fields of an account.
type EditUserInput struct {
	Username string
	Email    string
	Role     model.Role
}

// EditUser updates an account's identity and role. Requires the admin
// capability. The role and both staff flags are written in one
// statement so the stored flags can never disagree with the role.
func (s *AccountService) EditUser(ctx context.Context, actor *model.User, id int64, in EditUserInput) (model.User, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return model.User{}, ErrPermissionDenied
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	errs := make(ValidationErrors)
	validateUsername(in.Username, errs)
	validateEmail(in.Email, errs)
	if !in.Role.IsAssignable() {
		errs["role"] = "Invalid role"
	}
	if len(errs) > 0 {
		return model.User{}, errs
	}

	if existing, err := s.queries.GetUserByUsername(ctx, in.Username); err == nil {
		if existing.ID != id {
			return model.User{}, ErrDuplicateUsername
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("checking username: %w", err)
	}

	isStaff, isSuperuser := model.StaffFlags(in.Role)
	user, err := s.queries.UpdateUser(ctx, store.UpdateUserParams{
		ID:          id,
		Username:    in.Username,
		Email:       in.Email,
		Role:        in.Role,
		IsStaff:     isStaff,
		IsSuperuser: isSuperuser,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		if store.IsUniqueViolation(err) {
			return model.User{}, ErrDuplicateUsername
		}
		return model.User{}, fmt.Errorf("updating user: %w", err)
	}

	s.events.LogUserEvent(ctx, model.EventLevelInfo,
		fmt.Sprintf("user %q updated", user.Username), &actor.ID, "", nil)
	return user, nil
}

// ChangeRole reassigns an account's role. Requires the admin capability.
func (s *AccountService) ChangeRole(ctx context.Context, actor *model.User, id int64, role model.Role) (model.User, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return model.User{}, ErrPermissionDenied
	}
	user, err := s.roles.SetRole(ctx, id, role)
	if err != nil {
		return model.User{}, err
	}
	s.events.LogUserEvent(ctx, model.EventLevelInfo,
		fmt.Sprintf("user %q role changed to %s", user.Username, role), &actor.ID, "", nil)
	return user, nil
}

// DeleteUser removes an account through the administration surface.
// Requires the admin capability. Admins cannot delete their own
// account here, and superuser accounts cannot be deleted here at all.
func (s *AccountService) DeleteUser(ctx context.Context, actor *model.User, id int64) error {
	if !s.roles.CanAdministerUsers(actor) {
		return ErrPermissionDenied
	}
	if actor.ID == id {
		return ErrSelfDelete
	}

	target, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("loading user: %w", err)
	}
	if target.IsSuperuser {
		return ErrSuperuserDelete
	}

	if err := s.queries.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting user: %w", err)
	}

	s.events.LogUserEvent(ctx, model.EventLevelWarning,
		fmt.Sprintf("user %q deleted", target.Username), &actor.ID, "", nil)
	return nil
}

// GetUser returns a single account. Requires the admin capability.
func (s *AccountService) GetUser(ctx context.Context, actor *model.User, id int64) (model.User, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return model.User{}, ErrPermissionDenied
	}
	user, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// UserPage is one page of an account listing.
type UserPage struct {
	Users      []model.User
	Page       int
	TotalPages int
	Total      int64
}

// ListUsers returns a page of accounts, optionally filtered by a
// username or email substring. Requires the admin capability.
func (s *AccountService) ListUsers(ctx context.Context, actor *model.User, search string, page int) (UserPage, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return UserPage{}, ErrPermissionDenied
	}

	search = strings.TrimSpace(search)
	total, err := s.queries.CountUsers(ctx, search)
	if err != nil {
		return UserPage{}, fmt.Errorf("counting users: %w", err)
	}

	page, totalPages := ClampPage(page, total, UsersPerPage)
	users, err := s.queries.ListUsers(ctx, store.ListUsersParams{
		Search: search,
		Limit:  UsersPerPage,
		Offset: int64((page - 1) * UsersPerPage),
	})
	if err != nil {
		return UserPage{}, fmt.Errorf("listing users: %w", err)
	}

	return UserPage{Users: users, Page: page, TotalPages: totalPages, Total: total}, nil
}

// RoleCounts returns how many accounts hold each assignable role.
// Requires the admin capability.
func (s *AccountService) RoleCounts(ctx context.Context, actor *model.User) (map[model.Role]int64, error) {
	if !s.roles.CanAdministerUsers(actor) {
		return nil, ErrPermissionDenied
	}
	counts := make(map[model.Role]int64, len(model.AssignableRoles))
	for _, role := range model.AssignableRoles {
		n, err := s.queries.CountUsersByRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("counting %s users: %w", role, err)
		}
		counts[role] = n
	}
	return counts, nil
}

// UpdateProfileInput holds the self-service profile fields.
type UpdateProfileInput struct {
	Username string
	Email    string
}

// UpdateProfile changes the caller's own username and email. The role
// and flags are untouched.
func (s *AccountService) UpdateProfile(ctx context.Context, user *model.User, in UpdateProfileInput) (model.User, error) {
	if user == nil {
		return model.User{}, ErrPermissionDenied
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	errs := make(ValidationErrors)
	validateUsername(in.Username, errs)
	validateEmail(in.Email, errs)
	if len(errs) > 0 {
		return model.User{}, errs
	}

	if existing, err := s.queries.GetUserByUsername(ctx, in.Username); err == nil {
		if existing.ID != user.ID {
			return model.User{}, ErrDuplicateUsername
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("checking username: %w", err)
	}

	isStaff, isSuperuser := model.StaffFlags(user.Role)
	updated, err := s.queries.UpdateUser(ctx, store.UpdateUserParams{
		ID:          user.ID,
		Username:    in.Username,
		Email:       in.Email,
		Role:        user.Role,
		IsStaff:     isStaff,
		IsSuperuser: isSuperuser,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		if store.IsUniqueViolation(err) {
			return model.User{}, ErrDuplicateUsername
		}
		return model.User{}, fmt.Errorf("updating profile: %w", err)
	}
	return updated, nil
}

// ChangePassword replaces the caller's password after verifying the
// current one.
func (s *AccountService) ChangePassword(ctx context.Context, user *model.User, current, next string) error {
	if user == nil {
		return ErrPermissionDenied
	}

	ok, err := auth.CheckPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return ValidationErrors{"current_password": "Current password is incorrect"}
	}
	if len(next) < MinPasswordLength {
		return ValidationErrors{"new_password": fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)}
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.queries.UpdateUserPassword(ctx, store.UpdateUserPasswordParams{
		ID:           user.ID,
		PasswordHash: hash,
		UpdatedAt:    time.Now(),
	}); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.events.LogUserEvent(ctx, model.EventLevelInfo, "password changed", &user.ID, "", nil)
	return nil
}

// GetPreferences returns the caller's stored preferences, or the
// defaults when none are stored yet.
func (s *AccountService) GetPreferences(ctx context.Context, userID int64) (model.Preference, error) {
	return s.queries.GetPreference(ctx, userID)
}

// SavePreferences stores the caller's preferences.
func (s *AccountService) SavePreferences(ctx context.Context, pref model.Preference) error {
	pref.UpdatedAt = time.Now()
	if err := s.queries.UpsertPreference(ctx, pref); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// SelfDelete removes the caller's own account. Unlike the
// administration path, superusers may delete themselves here.
func (s *AccountService) SelfDelete(ctx context.Context, user *model.User) error {
	if user == nil {
		return ErrPermissionDenied
	}
	if err := s.queries.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting account: %w", err)
	}
	s.events.LogUserEvent(ctx, model.EventLevelWarning,
		fmt.Sprintf("user %q deleted own account", user.Username), nil, "", nil)
	return nil
}
