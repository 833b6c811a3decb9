package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notifyhq/notification-engine/internal/models"
)

func TestResolveChannels_NilPreferences(t *testing.T) {
	requested := []models.Channel{models.ChannelEmail, models.ChannelSMS}
	got := ResolveChannels(requested, "order-confirmation", nil)
	assert.Equal(t, requested, got)
}

func TestResolveChannels_GlobalOptOut(t *testing.T) {
	prefs := &models.NotificationPreference{GlobalOptOut: true}
	got := ResolveChannels([]models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelPush}, "any-type", prefs)
	assert.Empty(t, got)
}

func TestResolveChannels_ChannelDisabled(t *testing.T) {
	prefs := &models.NotificationPreference{
		Channels: map[models.Channel]models.ChannelSetting{
			models.ChannelSMS: {Enabled: false},
		},
	}
	got := ResolveChannels([]models.Channel{models.ChannelEmail, models.ChannelSMS}, "order-confirmation", prefs)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, got)
}

func TestResolveChannels_TypeDisabled(t *testing.T) {
	prefs := &models.NotificationPreference{
		NotificationTypes: map[string]map[models.Channel]bool{
			"marketing": {models.ChannelEmail: false},
		},
	}

	got := ResolveChannels([]models.Channel{models.ChannelEmail}, "marketing", prefs)
	assert.Empty(t, got)

	// Other types are untouched by the marketing opt-out.
	got = ResolveChannels([]models.Channel{models.ChannelEmail}, "order-confirmation", prefs)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, got)
}

func TestResolveChannels_AbsenceDefaultsToAllowed(t *testing.T) {
	prefs := &models.NotificationPreference{
		Channels: map[models.Channel]models.ChannelSetting{
			models.ChannelEmail: {Enabled: true},
		},
		NotificationTypes: map[string]map[models.Channel]bool{
			"marketing": {models.ChannelSMS: false},
		},
	}
	got := ResolveChannels([]models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelPush}, "order-confirmation", prefs)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelPush}, got)
}

func TestResolveChannels_DedupesRequest(t *testing.T) {
	got := ResolveChannels([]models.Channel{models.ChannelEmail, models.ChannelEmail, models.ChannelSMS}, "order-confirmation", nil)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, got)
}

func TestResolveChannels_AlwaysSubsetOfRequest(t *testing.T) {
	prefs := &models.NotificationPreference{
		Channels: map[models.Channel]models.ChannelSetting{
			models.ChannelPush: {Enabled: true},
		},
	}
	requested := []models.Channel{models.ChannelSMS}
	got := ResolveChannels(requested, "alerts", prefs)
	for _, ch := range got {
		assert.Contains(t, requested, ch)
	}
}
