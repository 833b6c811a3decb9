package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/models"
)

// PushDispatcher keeps the push slot in the channel set without a transport
// behind it. Every send reports a structured failure.
type PushDispatcher struct {
	logger zerolog.Logger
}

func NewPushDispatcher(logger zerolog.Logger) *PushDispatcher {
	return &PushDispatcher{logger: logger.With().Str("dispatcher", "push").Logger()}
}

func (d *PushDispatcher) Channel() models.Channel {
	return models.ChannelPush
}

func (d *PushDispatcher) Send(_ context.Context, payload Payload) models.DeliveryResult {
	d.logger.Debug().
		Str("notification_id", payload.NotificationID).
		Msg("push dispatch requested but no transport is configured")
	return failure(models.ChannelPush, "push", "push channel not implemented")
}
