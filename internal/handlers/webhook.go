package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/webhook"
)

type WebhookHandler struct {
	ingestor *webhook.Ingestor
	logger   zerolog.Logger
}

func NewWebhookHandler(ingestor *webhook.Ingestor, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		logger:   logger.With().Str("handler", "webhook").Logger(),
	}
}

// Receive accepts one provider callback. Providers retry on non-2xx, so only
// genuinely unparseable or unverifiable payloads are rejected.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(mux.Vars(r)["provider"])
	if !h.ingestor.Ingest(provider, r) {
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
