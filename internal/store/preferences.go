// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/olegiv/oblog-go/internal/model"
)

// GetPreference returns the stored preference row for a user, or the
// defaults when the user has never saved preferences.
func (q *Queries) GetPreference(ctx context.Context, userID int64) (model.Preference, error) {
	var p model.Preference
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, notifications, auto_backup, dark_mode, updated_at
		FROM preferences WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Notifications, &p.AutoBackup, &p.DarkMode, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultPreference(userID), nil
	}
	return p, err
}

// UpsertPreference writes a user's preference row, creating it on first save.
func (q *Queries) UpsertPreference(ctx context.Context, p model.Preference) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, notifications, auto_backup, dark_mode, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			notifications = excluded.notifications,
			auto_backup = excluded.auto_backup,
			dark_mode = excluded.dark_mode,
			updated_at = excluded.updated_at`,
		p.UserID, p.Notifications, p.AutoBackup, p.DarkMode, time.Now())
	return err
}
