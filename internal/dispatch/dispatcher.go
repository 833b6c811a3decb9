// Package dispatch wraps each external delivery provider behind a uniform
// send contract. Dispatch failures are always returned as structured results;
// no error crosses the dispatcher boundary.
package dispatch

import (
	"context"

	"github.com/notifyhq/notification-engine/internal/models"
)

// Payload is the compiled, addressed content handed to a dispatcher.
type Payload struct {
	To             string
	Subject        string
	Body           string
	HTMLBody       string
	MediaURLs      []string
	NotificationID string
	CorrelationID  string
}

// Dispatcher sends one payload through one channel's provider.
type Dispatcher interface {
	Channel() models.Channel
	Send(ctx context.Context, payload Payload) models.DeliveryResult
}

func failure(channel models.Channel, provider, errMsg string) models.DeliveryResult {
	return models.DeliveryResult{
		Channel:  channel,
		Success:  false,
		Provider: provider,
		Error:    errMsg,
	}
}
