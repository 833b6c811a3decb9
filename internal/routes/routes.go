package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/notifyhq/notification-engine/internal/handlers"
)

// NewRouter sets up the API routes.
func NewRouter(
	notification *handlers.NotificationHandler,
	preference *handlers.PreferenceHandler,
	webhook *handlers.WebhookHandler,
	scheduler *handlers.SchedulerHandler,
	health *handlers.HealthHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", health.Check).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Notification submission and lookup
	api.HandleFunc("/notifications", notification.Submit).Methods(http.MethodPost)
	api.HandleFunc("/notifications/bulk", notification.SubmitBulk).Methods(http.MethodPost)
	api.HandleFunc("/notifications/email", notification.SendEmail).Methods(http.MethodPost)
	api.HandleFunc("/notifications/sms", notification.SendSMS).Methods(http.MethodPost)
	api.HandleFunc("/notifications/stats", notification.Stats).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}", notification.Get).Methods(http.MethodGet)

	// Per-user history and preferences
	api.HandleFunc("/users/{userID}/notifications", notification.History).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}/preferences", preference.Get).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}/preferences", preference.Update).Methods(http.MethodPut)

	// Provider delivery-status callbacks
	api.HandleFunc("/webhooks/{provider}", webhook.Receive).Methods(http.MethodPost)

	// Manual scheduler pass
	api.HandleFunc("/scheduler/run", scheduler.Run).Methods(http.MethodPost)

	return router
}
