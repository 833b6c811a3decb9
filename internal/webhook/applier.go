package webhook

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/repository"
)

// Applier serializes delivery-status writes: every update flows through one
// consumer goroutine, so the dispatch path and webhook path never race on the
// same record from within this process.
type Applier struct {
	repo    repository.NotificationRepository
	updates chan DeliveryStatusUpdate
	logger  zerolog.Logger
}

func NewApplier(repo repository.NotificationRepository, logger zerolog.Logger) *Applier {
	return &Applier{
		repo:    repo,
		updates: make(chan DeliveryStatusUpdate, 256),
		logger:  logger.With().Str("component", "webhook_applier").Logger(),
	}
}

// Enqueue hands an update to the applier goroutine. Drops with a warning if
// the buffer is full rather than blocking the webhook response.
func (a *Applier) Enqueue(update DeliveryStatusUpdate) {
	select {
	case a.updates <- update:
	default:
		a.logger.Warn().
			Str("message_id", update.MessageID).
			Msg("update queue full, dropping delivery status event")
	}
}

// Run consumes updates until the context is cancelled, draining what is
// already queued before returning.
func (a *Applier) Run(ctx context.Context) {
	a.logger.Info().Msg("webhook applier started")
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case update := <-a.updates:
					a.apply(context.Background(), update)
				default:
					a.logger.Info().Msg("webhook applier stopped")
					return
				}
			}
		case update := <-a.updates:
			a.apply(ctx, update)
		}
	}
}

func (a *Applier) apply(ctx context.Context, update DeliveryStatusUpdate) {
	if !update.Kind.terminalNegative() {
		a.logger.Info().
			Str("provider", update.Provider).
			Str("message_id", update.MessageID).
			Str("event", string(update.Kind)).
			Msg("delivery status event")
		return
	}

	found, err := a.repo.ApplyDeliveryStatus(ctx, update.MessageID, false, string(update.Kind)+": "+update.Detail)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("message_id", update.MessageID).
			Msg("failed to apply delivery status")
		return
	}
	if !found {
		a.logger.Warn().
			Str("provider", update.Provider).
			Str("message_id", update.MessageID).
			Msg("delivery status event for unknown message id")
		return
	}
	a.logger.Info().
		Str("provider", update.Provider).
		Str("message_id", update.MessageID).
		Str("event", string(update.Kind)).
		Msg("delivery result marked failed")
}
