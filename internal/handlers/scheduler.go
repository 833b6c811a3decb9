package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DueProcessor is the manual-trigger surface of the scheduler.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

type SchedulerHandler struct {
	scheduler DueProcessor
	logger    zerolog.Logger
}

func NewSchedulerHandler(scheduler DueProcessor, logger zerolog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger.With().Str("handler", "scheduler").Logger(),
	}
}

// Run triggers one scheduler pass outside the regular tick.
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	processed, err := h.scheduler.ProcessDue(r.Context(), time.Now())
	if err != nil {
		h.logger.Error().Err(err).Msg("manual scheduler pass failed")
		http.Error(w, "Failed to process scheduled notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}
