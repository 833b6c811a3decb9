// Package preference filters requested delivery channels against a user's
// stored notification preferences.
package preference

import (
	"github.com/notifyhq/notification-engine/internal/models"
)

// ResolveChannels returns the subset of requested channels the user permits
// for the given notification type. Preferences follow an opt-out model: a
// channel is delivered unless the preference record explicitly disables it,
// either globally, per channel, or per notification type. A nil preference
// record permits everything (fail-open default). The result preserves request
// order with duplicates removed and is always a subset of the request.
func ResolveChannels(requested []models.Channel, notificationType string, prefs *models.NotificationPreference) []models.Channel {
	requested = models.DedupeChannels(requested)
	if prefs == nil {
		return requested
	}
	if prefs.GlobalOptOut {
		return []models.Channel{}
	}

	resolved := make([]models.Channel, 0, len(requested))
	for _, ch := range requested {
		if setting, ok := prefs.Channels[ch]; ok && !setting.Enabled {
			continue
		}
		if perType, ok := prefs.NotificationTypes[notificationType]; ok {
			if enabled, ok := perType[ch]; ok && !enabled {
				continue
			}
		}
		resolved = append(resolved, ch)
	}
	return resolved
}
