// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides the business logic layer: role capabilities,
// the anonymous submission guard, post moderation, account administration,
// and audit event logging.
package service

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors returned by the service layer. Handlers map these to
// user-facing responses; none of them is fatal to the process.
var (
	// ErrPermissionDenied means the acting user's role does not grant
	// the attempted operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername means the requested username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrQuotaExceeded means the anonymous submission limit was reached.
	ErrQuotaExceeded = errors.New("anonymous limit reached")

	// ErrNothingSelected means a bulk operation received an empty id set.
	ErrNothingSelected = errors.New("no posts selected")

	// ErrSelfDelete means an admin tried to delete their own account
	// through account administration.
	ErrSelfDelete = errors.New("cannot delete your own account")

	// ErrSuperuserDelete means an admin tried to delete a superuser
	// account through account administration.
	ErrSuperuserDelete = errors.New("cannot delete a superuser")
)

// ValidationErrors maps field names to validation messages.
type ValidationErrors map[string]string

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// AsValidationErrors unwraps err as ValidationErrors if possible.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
