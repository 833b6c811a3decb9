// Package scheduler drives deferred notifications: a ticker-driven pass
// claims due rows and resubmits them through the orchestrator.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/repository"
	"github.com/notifyhq/notification-engine/internal/service"
)

type Scheduler struct {
	repo         repository.NotificationRepository
	orchestrator service.Service
	pollInterval time.Duration
	batchLimit   int
	logger       zerolog.Logger
	now          func() time.Time
}

func New(repo repository.NotificationRepository, orchestrator service.Service, pollInterval time.Duration, batchLimit int, logger zerolog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Scheduler{
		repo:         repo,
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		batchLimit:   batchLimit,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		now:          time.Now,
	}
}

// Run polls for due notifications until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("poll_interval", s.pollInterval).Msg("scheduler started")
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx, s.now()); err != nil {
				// Log and keep ticking; the next pass retries.
				s.logger.Error().Err(err).Msg("scheduled pass failed")
			}
		}
	}
}

// ProcessDue claims up to the batch limit of due notifications and
// redispatches each one. An item's failure is recorded on that item and does
// not halt the batch. Returns the number of items processed.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ClaimDue(ctx, now, s.batchLimit)
	if err != nil {
		return 0, errors.Wrap(err, "claim due notifications")
	}
	if len(due) == 0 {
		return 0, nil
	}

	processed := 0
	for _, notif := range due {
		s.processItem(ctx, notif)
		processed++
	}
	s.logger.Info().Int("processed", processed).Msg("scheduled pass complete")
	return processed, nil
}

func (s *Scheduler) processItem(ctx context.Context, notif models.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Str("notification_id", notif.ID).
				Interface("panic", rec).
				Msg("recovered panic processing due notification")
			s.markFailed(ctx, notif, fmt.Sprintf("panic during scheduled dispatch: %v", rec))
		}
	}()

	updated, err := s.orchestrator.Redispatch(ctx, notif)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("notification_id", notif.ID).
			Msg("failed to redispatch due notification")
		s.markFailed(ctx, notif, err.Error())
		return
	}

	s.logger.Info().
		Str("notification_id", updated.ID).
		Str("status", string(updated.Status)).
		Msg("due notification dispatched")
}

// markFailed records a synthetic delivery result so the item leaves the
// processing state even when dispatch itself blew up.
func (s *Scheduler) markFailed(ctx context.Context, notif models.Notification, reason string) {
	synthetic := []models.DeliveryResult{{
		Provider: "scheduler",
		Success:  false,
		Error:    reason,
	}}
	if len(notif.Channels) > 0 {
		synthetic[0].Channel = notif.Channels[0]
	}
	if _, err := s.repo.UpdateDispatchOutcome(ctx, notif.ID, models.StatusFailed, s.now(), synthetic); err != nil {
		s.logger.Error().
			Err(err).
			Str("notification_id", notif.ID).
			Msg("failed to mark due notification failed")
	}
}
