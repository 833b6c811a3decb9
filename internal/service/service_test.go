package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhq/notification-engine/internal/dispatch"
	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/repository"
	"github.com/notifyhq/notification-engine/internal/template"
)

// stubRepo is an in-memory NotificationRepository.
type stubRepo struct {
	mu            sync.Mutex
	notifications map[string]models.Notification
	createErr     error
}

func newStubRepo() *stubRepo {
	return &stubRepo{notifications: make(map[string]models.Notification)}
}

func (r *stubRepo) Create(_ context.Context, notif models.Notification) (models.Notification, error) {
	if r.createErr != nil {
		return models.Notification{}, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	notif.CreatedAt = now
	notif.UpdatedAt = now
	notif.Version = 1
	r.notifications[notif.ID] = notif
	return notif, nil
}

func (r *stubRepo) GetByID(_ context.Context, id string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notif, ok := r.notifications[id]
	if !ok {
		return models.Notification{}, sql.ErrNoRows
	}
	return notif, nil
}

func (r *stubRepo) UpdateDispatchOutcome(_ context.Context, id string, status models.Status, sentAt time.Time, results []models.DeliveryResult) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notif, ok := r.notifications[id]
	if !ok {
		return models.Notification{}, sql.ErrNoRows
	}
	notif.Status = status
	notif.SentAt = &sentAt
	notif.DeliveryResults = results
	notif.Version++
	r.notifications[id] = notif
	return notif, nil
}

func (r *stubRepo) ListHistory(_ context.Context, userID string, _ repository.HistoryFilter) ([]models.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.notifications {
		if n.UserID != nil && *n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (r *stubRepo) Stats(_ context.Context, _ repository.StatsFilter) (models.NotificationStats, error) {
	return models.NotificationStats{}, nil
}

func (r *stubRepo) ClaimDue(_ context.Context, _ time.Time, _ int) ([]models.Notification, error) {
	return nil, nil
}

func (r *stubRepo) ApplyDeliveryStatus(_ context.Context, _ string, _ bool, _ string) (bool, error) {
	return false, nil
}

// stubPrefRepo returns a fixed preference record, or sql.ErrNoRows.
type stubPrefRepo struct {
	prefs map[string]models.NotificationPreference
}

func (r *stubPrefRepo) Get(_ context.Context, userID string) (models.NotificationPreference, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	return models.NotificationPreference{}, sql.ErrNoRows
}

func (r *stubPrefRepo) Upsert(_ context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	if r.prefs == nil {
		r.prefs = make(map[string]models.NotificationPreference)
	}
	r.prefs[pref.UserID] = pref
	return pref, nil
}

// stubDispatcher records payloads and returns a canned outcome.
type stubDispatcher struct {
	channel models.Channel
	fail    bool

	mu    sync.Mutex
	calls []dispatch.Payload
}

func (d *stubDispatcher) Channel() models.Channel { return d.channel }

func (d *stubDispatcher) Send(_ context.Context, payload dispatch.Payload) models.DeliveryResult {
	d.mu.Lock()
	d.calls = append(d.calls, payload)
	d.mu.Unlock()
	if d.fail {
		return models.DeliveryResult{Channel: d.channel, Provider: "stub", Error: "provider outage"}
	}
	return models.DeliveryResult{Channel: d.channel, Success: true, Provider: "stub", MessageID: "msg-" + string(d.channel)}
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTestOrchestrator(repo *stubRepo, prefRepo *stubPrefRepo, dispatchers ...dispatch.Dispatcher) *Orchestrator {
	return NewOrchestrator(repo, prefRepo, template.NewStaticRegistry(), zerolog.Nop(), Options{}, dispatchers...)
}

func TestSend_AllChannelsSucceed(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	sms := &stubDispatcher{channel: models.ChannelSMS}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email, sms)

	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:     "order-confirmation",
		Title:    "Order confirmed",
		Message:  "Your order is on its way",
		Channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
		Metadata: map[string]string{"email": "user@example.com", "phone": "+15551234567"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSent, notif.Status)
	require.Len(t, notif.DeliveryResults, 2)
	assert.Equal(t, models.ChannelEmail, notif.DeliveryResults[0].Channel)
	assert.Equal(t, models.ChannelSMS, notif.DeliveryResults[1].Channel)
	assert.NotNil(t, notif.SentAt)
}

func TestSend_PartialFailure(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	sms := &stubDispatcher{channel: models.ChannelSMS, fail: true}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email, sms)

	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:     "order-confirmation",
		Title:    "Order confirmed",
		Message:  "body",
		Channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPartial, notif.Status)
	require.Len(t, notif.DeliveryResults, 2)

	succeeded := 0
	for _, r := range notif.DeliveryResults {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	// A failing sibling never blocks the other channel.
	assert.Equal(t, 1, email.callCount())
	assert.Equal(t, 1, sms.callCount())
}

func TestSend_ScheduledBypassesDispatch(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	repo := newStubRepo()
	orch := newTestOrchestrator(repo, &stubPrefRepo{}, email)

	future := time.Now().Add(time.Hour)
	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:        "reminder",
		Title:       "Reminder",
		Message:     "later",
		Channels:    []models.Channel{models.ChannelEmail},
		ScheduledAt: &future,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusScheduled, notif.Status)
	assert.Empty(t, notif.DeliveryResults)
	assert.Nil(t, notif.SentAt)
	assert.Equal(t, 0, email.callCount())

	stored, err := repo.GetByID(context.Background(), notif.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, stored.Status)
}

func TestSend_PastScheduleDispatchesImmediately(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email)

	past := time.Now().Add(-time.Minute)
	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:        "reminder",
		Title:       "Reminder",
		Message:     "now",
		Channels:    []models.Channel{models.ChannelEmail},
		ScheduledAt: &past,
		Metadata:    map[string]string{"email": "user@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, notif.Status)
	assert.Equal(t, 1, email.callCount())
}

func TestSend_FullOptOutDistinguishable(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	prefRepo := &stubPrefRepo{prefs: map[string]models.NotificationPreference{
		"u1": {UserID: "u1", GlobalOptOut: true},
	}}
	orch := newTestOrchestrator(newStubRepo(), prefRepo, email)

	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		UserID:   "u1",
		Type:     "marketing",
		Title:    "Sale",
		Message:  "everything must go",
		Channels: []models.Channel{models.ChannelEmail},
	})
	require.NoError(t, err)

	// Opt-out is failed with zero results, distinguishable from a send failure.
	assert.Equal(t, models.StatusFailed, notif.Status)
	assert.Len(t, notif.DeliveryResults, 0)
	assert.Equal(t, 0, email.callCount())
}

func TestSend_TypeLevelOptOut(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	sms := &stubDispatcher{channel: models.ChannelSMS}
	prefRepo := &stubPrefRepo{prefs: map[string]models.NotificationPreference{
		"u1": {
			UserID: "u1",
			Email:  "stored@example.com",
			Phone:  "+15550002222",
			NotificationTypes: map[string]map[models.Channel]bool{
				"marketing": {models.ChannelSMS: false},
			},
		},
	}}
	orch := newTestOrchestrator(newStubRepo(), prefRepo, email, sms)

	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		UserID:   "u1",
		Type:     "marketing",
		Title:    "Sale",
		Message:  "body",
		Channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
	})
	require.NoError(t, err)

	assert.Equal(t, []models.Channel{models.ChannelEmail}, notif.Channels)
	assert.Equal(t, 1, email.callCount())
	assert.Equal(t, 0, sms.callCount())
	// Addressing falls back to the stored preference contact.
	assert.Equal(t, "stored@example.com", email.calls[0].To)
}

func TestSend_TemplateCompiled(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email)

	_, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:       "order-confirmation",
		TemplateID: "order-confirmation",
		TemplateData: map[string]string{
			"name":    "Ada",
			"orderId": "o-42",
			"total":   "$10",
		},
		Channels: []models.Channel{models.ChannelEmail},
		Metadata: map[string]string{"email": "user@example.com"},
	})
	require.NoError(t, err)

	require.Len(t, email.calls, 1)
	assert.Equal(t, "Order o-42 confirmed", email.calls[0].Subject)
	assert.Contains(t, email.calls[0].Body, "Thanks, Ada!")
}

func TestSend_MissingTemplateFallsBackToRawContent(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email)

	_, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:       "order-confirmation",
		Title:      "Raw title",
		Message:    "Raw body",
		TemplateID: "no-such-template",
		Channels:   []models.Channel{models.ChannelEmail},
		Metadata:   map[string]string{"email": "user@example.com"},
	})
	require.NoError(t, err)

	require.Len(t, email.calls, 1)
	assert.Equal(t, "Raw title", email.calls[0].Subject)
	assert.Equal(t, "Raw body", email.calls[0].Body)
}

func TestSend_ValidationErrors(t *testing.T) {
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{})

	tests := []models.NotificationRequest{
		{Channels: []models.Channel{models.ChannelEmail}, Title: "x"},           // no type
		{Type: "t", Title: "x"},                                                 // no channels
		{Type: "t", Title: "x", Channels: []models.Channel{"carrier-pigeon"}},   // unknown channel
		{Type: "t", Channels: []models.Channel{models.ChannelEmail}},            // no content
	}
	for _, req := range tests {
		_, err := orch.Send(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestSend_NoDispatcherForChannel(t *testing.T) {
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{})

	notif, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:     "alerts",
		Title:    "t",
		Message:  "m",
		Channels: []models.Channel{models.ChannelPush},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, notif.Status)
	require.Len(t, notif.DeliveryResults, 1)
	assert.Contains(t, notif.DeliveryResults[0].Error, "no dispatcher")
}

func TestSend_PersistenceErrorSurfaces(t *testing.T) {
	repo := newStubRepo()
	repo.createErr = sql.ErrConnDone
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(repo, &stubPrefRepo{}, email)

	_, err := orch.Send(context.Background(), models.NotificationRequest{
		Type:     "alerts",
		Title:    "t",
		Message:  "m",
		Channels: []models.Channel{models.ChannelEmail},
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRedispatch_UpdatesExistingRecord(t *testing.T) {
	repo := newStubRepo()
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(repo, &stubPrefRepo{}, email)

	past := time.Now().Add(-time.Minute)
	scheduled := models.Notification{
		ID:          "n1",
		Type:        "reminder",
		Title:       "t",
		Message:     "m",
		Channels:    []models.Channel{models.ChannelEmail},
		Status:      models.StatusProcessing,
		ScheduledAt: &past,
		Metadata:    map[string]string{"email": "user@example.com"},
	}
	_, err := repo.Create(context.Background(), scheduled)
	require.NoError(t, err)

	updated, err := orch.Redispatch(context.Background(), scheduled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, updated.Status)
	require.Len(t, updated.DeliveryResults, 1)
	assert.Equal(t, 1, email.callCount())
	assert.Equal(t, 2, updated.Version)
}

func TestSendEmailDirect(t *testing.T) {
	email := &stubDispatcher{channel: models.ChannelEmail}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, email)

	notif, err := orch.SendEmailDirect(context.Background(), models.EmailRequest{
		To:      "user@example.com",
		Subject: "direct",
		Body:    "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSent, notif.Status)
	assert.Equal(t, "direct-email", notif.Type)
	require.Len(t, email.calls, 1)
	assert.Equal(t, "user@example.com", email.calls[0].To)
}

func TestSendSMSDirect(t *testing.T) {
	sms := &stubDispatcher{channel: models.ChannelSMS}
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{}, sms)

	notif, err := orch.SendSMSDirect(context.Background(), models.SMSRequest{
		To:        "+15551234567",
		Body:      "hello",
		MediaURLs: []string{"https://cdn.example.com/a.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSent, notif.Status)
	assert.Equal(t, "direct-sms", notif.Type)
	require.Len(t, sms.calls, 1)
	assert.Equal(t, "+15551234567", sms.calls[0].To)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, sms.calls[0].MediaURLs)
}

func TestSendDirect_Validation(t *testing.T) {
	orch := newTestOrchestrator(newStubRepo(), &stubPrefRepo{})

	_, err := orch.SendEmailDirect(context.Background(), models.EmailRequest{Subject: "s"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = orch.SendSMSDirect(context.Background(), models.SMSRequest{Body: "b"})
	assert.ErrorIs(t, err, ErrValidation)
}
