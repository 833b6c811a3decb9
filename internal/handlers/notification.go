package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/repository"
	"github.com/notifyhq/notification-engine/internal/service"
)

type NotificationHandler struct {
	service service.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(svc service.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: svc,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	notif, err := h.service.Send(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("type", req.Type).Msg("failed to submit notification")
		writeError(w, err, "Failed to submit notification")
		return
	}

	status := http.StatusCreated
	if notif.Status == models.StatusScheduled {
		status = http.StatusAccepted
	}
	writeJSON(w, status, notif)
}

func (h *NotificationHandler) SubmitBulk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Notifications []models.NotificationRequest `json:"notifications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if len(payload.Notifications) == 0 {
		http.Error(w, "At least one notification is required", http.StatusBadRequest)
		return
	}

	results, summary, err := h.service.SendBulk(r.Context(), payload.Notifications)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to process bulk submission")
		writeError(w, err, "Failed to process bulk submission")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"summary": summary,
	})
}

func (h *NotificationHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req models.EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	notif, err := h.service.SendEmailDirect(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to send direct email")
		writeError(w, err, "Failed to send email")
		return
	}
	writeJSON(w, http.StatusCreated, notif)
}

func (h *NotificationHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req models.SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	notif, err := h.service.SendSMSDirect(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to send direct sms")
		writeError(w, err, "Failed to send SMS")
		return
	}
	writeJSON(w, http.StatusCreated, notif)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if id == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	notif, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to fetch notification")
		return
	}
	writeJSON(w, http.StatusOK, notif)
}

func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, err, "Invalid time filter")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, err, "Invalid time filter")
		return
	}

	filter := repository.HistoryFilter{
		Type:   r.URL.Query().Get("type"),
		Status: models.Status(r.URL.Query().Get("status")),
		From:   from,
		To:     to,
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 25),
	}

	notifications, total, err := h.service.History(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list notification history")
		writeError(w, err, "Failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"total":         total,
		"page":          filter.Page,
		"limit":         filter.Limit,
	})
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, err, "Invalid time filter")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, err, "Invalid time filter")
		return
	}

	filter := repository.StatsFilter{
		UserID:      r.URL.Query().Get("user_id"),
		From:        from,
		To:          to,
		GroupByType: r.URL.Query().Get("group_by") == "type",
	}

	stats, err := h.service.Stats(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to compute notification stats")
		writeError(w, err, "Failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
