// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Preference holds per-user settings toggles. One row per user; users
// without a row get DefaultPreference values.
type Preference struct {
	UserID        int64     `json:"user_id"`
	Notifications bool      `json:"notifications"`
	AutoBackup    bool      `json:"auto_backup"`
	DarkMode      bool      `json:"dark_mode"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultPreference returns the preference values for a user with no
// stored record.
func DefaultPreference(userID int64) Preference {
	return Preference{
		UserID:        userID,
		Notifications: true,
	}
}

// ContactMessage is a contact-form submission handed to the notifier.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
