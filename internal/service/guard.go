// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/olegiv/oblog-go/internal/store"
)

// AnonymousPostLimit is the lifetime cap on posts per anonymous address.
const AnonymousPostLimit = 3

// SubmissionGuard limits unauthenticated post submissions per origin
// address. The quota is recomputed from the posts table on every check;
// no counter is persisted.
type SubmissionGuard struct {
	queries *store.Queries
	limit   int64
}

// NewSubmissionGuard creates a guard with the default limit.
func NewSubmissionGuard(db *sql.DB) *SubmissionGuard {
	return &SubmissionGuard{queries: store.New(db), limit: AnonymousPostLimit}
}

// CheckAndAdmit decides whether a submission from address may proceed.
// Authenticated submitters are always admitted. The check and the
// subsequent insert are separate statements, so concurrent submissions
// from one address may slip past the cap; the limit is best-effort.
func (g *SubmissionGuard) CheckAndAdmit(ctx context.Context, address string, isAuthenticated bool) error {
	if isAuthenticated {
		return nil
	}

	count, err := g.queries.CountAnonymousPostsByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("counting anonymous posts: %w", err)
	}

	if count >= g.limit {
		slog.Info("anonymous submission denied", "address", address, "count", count)
		return ErrQuotaExceeded
	}

	return nil
}

// Remaining returns how many anonymous submissions the address has left.
func (g *SubmissionGuard) Remaining(ctx context.Context, address string) (int64, error) {
	count, err := g.queries.CountAnonymousPostsByAddress(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("counting anonymous posts: %w", err)
	}
	remaining := g.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
