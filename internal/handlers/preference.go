package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/service"
)

type PreferenceHandler struct {
	service service.Service
	logger  zerolog.Logger
}

func NewPreferenceHandler(svc service.Service, logger zerolog.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		service: svc,
		logger:  logger.With().Str("handler", "preference").Logger(),
	}
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	pref, err := h.service.GetPreferences(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No stored record means the fail-open default: everything allowed.
			writeJSON(w, http.StatusOK, models.NotificationPreference{UserID: userID})
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load preferences")
		writeError(w, err, "Failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	var pref models.NotificationPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	pref.UserID = userID

	updated, err := h.service.UpdatePreferences(r.Context(), pref)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to update preferences")
		writeError(w, err, "Failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
