package models

import "time"

// ChannelSetting holds the per-channel switch inside a preference record.
// Presence of an entry is an explicit choice; absence means allowed.
type ChannelSetting struct {
	Enabled bool `json:"enabled"`
}

// NotificationPreference is the per-user delivery settings record.
type NotificationPreference struct {
	UserID       string                     `json:"user_id" db:"user_id"`
	Email        string                     `json:"email,omitempty" db:"email"`
	Phone        string                     `json:"phone,omitempty" db:"phone"`
	GlobalOptOut bool                       `json:"global_opt_out" db:"global_opt_out"`
	Channels     map[Channel]ChannelSetting `json:"channels,omitempty" db:"channels"`
	// NotificationTypes maps a notification type to per-channel switches,
	// e.g. {"marketing": {"email": false}}.
	NotificationTypes map[string]map[Channel]bool `json:"notification_types,omitempty" db:"notification_types"`
	CreatedAt         time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at" db:"updated_at"`
}
