// Package service coordinates notification delivery: preference resolution,
// template compilation, per-channel fan-out, status aggregation, and
// persistence of the outcome.
package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/dispatch"
	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/preference"
	"github.com/notifyhq/notification-engine/internal/repository"
	"github.com/notifyhq/notification-engine/internal/template"
)

// ErrValidation marks malformed or incomplete requests. Handlers map it to a
// 400; it never reaches the store.
var ErrValidation = errors.New("validation error")

type Service interface {
	Send(ctx context.Context, req models.NotificationRequest) (models.Notification, error)
	SendBulk(ctx context.Context, reqs []models.NotificationRequest) ([]models.BulkItemResult, models.BulkSummary, error)
	SendEmailDirect(ctx context.Context, req models.EmailRequest) (models.Notification, error)
	SendSMSDirect(ctx context.Context, req models.SMSRequest) (models.Notification, error)
	Redispatch(ctx context.Context, notif models.Notification) (models.Notification, error)
	Get(ctx context.Context, id string) (models.Notification, error)
	History(ctx context.Context, userID string, filter repository.HistoryFilter) ([]models.Notification, int, error)
	Stats(ctx context.Context, filter repository.StatsFilter) (models.NotificationStats, error)
	GetPreferences(ctx context.Context, userID string) (models.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error)
}

type Options struct {
	BatchSize       int
	ChunkDelay      time.Duration
	DispatchTimeout time.Duration
}

type Orchestrator struct {
	repo        repository.NotificationRepository
	prefRepo    repository.PreferenceRepository
	registry    template.Registry
	compiler    *template.Compiler
	dispatchers map[models.Channel]dispatch.Dispatcher
	logger      zerolog.Logger

	batchSize       int
	chunkDelay      time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
}

func NewOrchestrator(
	repo repository.NotificationRepository,
	prefRepo repository.PreferenceRepository,
	registry template.Registry,
	logger zerolog.Logger,
	opts Options,
	dispatchers ...dispatch.Dispatcher,
) *Orchestrator {
	byChannel := make(map[models.Channel]dispatch.Dispatcher, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			byChannel[d.Channel()] = d
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	return &Orchestrator{
		repo:            repo,
		prefRepo:        prefRepo,
		registry:        registry,
		compiler:        template.NewCompiler(logger),
		dispatchers:     byChannel,
		logger:          logger.With().Str("component", "orchestrator").Logger(),
		batchSize:       opts.BatchSize,
		chunkDelay:      opts.ChunkDelay,
		dispatchTimeout: opts.DispatchTimeout,
		now:             time.Now,
	}
}

// Send validates, resolves channels, then either persists a scheduled record
// or dispatches immediately. Immediate sends perform exactly one storage
// write, after dispatch.
func (o *Orchestrator) Send(ctx context.Context, req models.NotificationRequest) (models.Notification, error) {
	if err := validateRequest(req); err != nil {
		return models.Notification{}, err
	}

	prefs, err := o.loadPreferences(ctx, req.UserID)
	if err != nil {
		return models.Notification{}, err
	}

	finalChannels := preference.ResolveChannels(req.Channels, req.Type, prefs)
	notif := buildNotification(req, finalChannels)

	if req.ScheduledAt != nil && req.ScheduledAt.After(o.now()) {
		notif.Status = models.StatusScheduled
		created, err := o.repo.Create(ctx, notif)
		if err != nil {
			return models.Notification{}, errors.Wrap(err, "persist scheduled notification")
		}
		o.logger.Info().
			Str("notification_id", created.ID).
			Time("scheduled_at", *req.ScheduledAt).
			Msg("notification scheduled")
		return created, nil
	}

	results := o.dispatchAll(ctx, notif, contactFrom(notif.Metadata, prefs))
	sentAt := o.now()
	notif.Status = models.StatusFromResults(results)
	notif.SentAt = &sentAt
	notif.DeliveryResults = results

	created, err := o.repo.Create(ctx, notif)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "persist notification")
	}
	o.logger.Info().
		Str("notification_id", created.ID).
		Str("status", string(created.Status)).
		Int("channels", len(finalChannels)).
		Msg("notification dispatched")
	return created, nil
}

// Redispatch re-runs dispatch for an already-persisted notification using its
// stored, already-resolved channel list. Used by the scheduler for due items.
func (o *Orchestrator) Redispatch(ctx context.Context, notif models.Notification) (models.Notification, error) {
	var prefs *models.NotificationPreference
	if notif.UserID != nil {
		var err error
		prefs, err = o.loadPreferences(ctx, *notif.UserID)
		if err != nil {
			return models.Notification{}, err
		}
	}

	results := o.dispatchAll(ctx, notif, contactFrom(notif.Metadata, prefs))
	status := models.StatusFromResults(results)
	updated, err := o.repo.UpdateDispatchOutcome(ctx, notif.ID, status, o.now(), results)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "persist dispatch outcome")
	}
	return updated, nil
}

func (o *Orchestrator) SendEmailDirect(ctx context.Context, req models.EmailRequest) (models.Notification, error) {
	if strings.TrimSpace(req.To) == "" {
		return models.Notification{}, errors.Wrap(ErrValidation, "recipient address is required")
	}

	notif := models.Notification{
		ID:       uuid.NewString(),
		Type:     "direct-email",
		Title:    req.Subject,
		Message:  req.Body,
		Channels: []models.Channel{models.ChannelEmail},
		Priority: models.PriorityNormal,
		Metadata: map[string]string{"email": req.To},
	}

	result := o.dispatchChannel(ctx, notif, models.ChannelEmail, contactInfo{email: req.To}, directContent{
		subject: req.Subject,
		body:    req.Body,
		html:    req.HTML,
	})
	return o.persistDirect(ctx, notif, result)
}

func (o *Orchestrator) SendSMSDirect(ctx context.Context, req models.SMSRequest) (models.Notification, error) {
	if strings.TrimSpace(req.To) == "" {
		return models.Notification{}, errors.Wrap(ErrValidation, "recipient number is required")
	}

	notif := models.Notification{
		ID:       uuid.NewString(),
		Type:     "direct-sms",
		Message:  req.Body,
		Channels: []models.Channel{models.ChannelSMS},
		Priority: models.PriorityNormal,
		Metadata: map[string]string{"phone": req.To},
	}
	if len(req.MediaURLs) > 0 {
		notif.Metadata["media_urls"] = strings.Join(req.MediaURLs, ",")
	}

	result := o.dispatchChannel(ctx, notif, models.ChannelSMS, contactInfo{phone: req.To}, directContent{
		body:  req.Body,
		media: req.MediaURLs,
	})
	return o.persistDirect(ctx, notif, result)
}

func (o *Orchestrator) persistDirect(ctx context.Context, notif models.Notification, result models.DeliveryResult) (models.Notification, error) {
	sentAt := o.now()
	notif.Status = models.StatusFromResults([]models.DeliveryResult{result})
	notif.SentAt = &sentAt
	notif.DeliveryResults = []models.DeliveryResult{result}

	created, err := o.repo.Create(ctx, notif)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "persist notification")
	}
	return created, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (models.Notification, error) {
	return o.repo.GetByID(ctx, id)
}

func (o *Orchestrator) History(ctx context.Context, userID string, filter repository.HistoryFilter) ([]models.Notification, int, error) {
	return o.repo.ListHistory(ctx, userID, filter)
}

func (o *Orchestrator) Stats(ctx context.Context, filter repository.StatsFilter) (models.NotificationStats, error) {
	return o.repo.Stats(ctx, filter)
}

func (o *Orchestrator) GetPreferences(ctx context.Context, userID string) (models.NotificationPreference, error) {
	return o.prefRepo.Get(ctx, userID)
}

func (o *Orchestrator) UpdatePreferences(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	if strings.TrimSpace(pref.UserID) == "" {
		return models.NotificationPreference{}, errors.Wrap(ErrValidation, "user id is required")
	}
	return o.prefRepo.Upsert(ctx, pref)
}

// dispatchAll fans out to one goroutine per channel and joins the results in
// channel-submission order. A failing channel never blocks its siblings.
func (o *Orchestrator) dispatchAll(ctx context.Context, notif models.Notification, contact contactInfo) []models.DeliveryResult {
	results := make([]models.DeliveryResult, len(notif.Channels))
	var wg sync.WaitGroup
	for i, ch := range notif.Channels {
		wg.Add(1)
		go func(i int, ch models.Channel) {
			defer wg.Done()
			results[i] = o.dispatchChannel(ctx, notif, ch, contact, directContent{})
		}(i, ch)
	}
	wg.Wait()
	return results
}

// directContent carries pre-compiled content for the direct-send endpoints,
// which bypass template resolution.
type directContent struct {
	subject string
	body    string
	html    string
	media   []string
}

func (c directContent) empty() bool {
	return c.subject == "" && c.body == "" && c.html == "" && len(c.media) == 0
}

func (o *Orchestrator) dispatchChannel(ctx context.Context, notif models.Notification, ch models.Channel, contact contactInfo, direct directContent) models.DeliveryResult {
	d, ok := o.dispatchers[ch]
	if !ok {
		return models.DeliveryResult{
			Channel:  ch,
			Provider: "none",
			Error:    "no dispatcher registered for channel",
		}
	}

	var payload dispatch.Payload
	if direct.empty() {
		payload = o.buildPayload(notif, ch, contact)
	} else {
		payload = dispatch.Payload{
			To:             contact.addressFor(ch),
			Subject:        direct.subject,
			Body:           direct.body,
			HTMLBody:       direct.html,
			MediaURLs:      direct.media,
			NotificationID: notif.ID,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.dispatchTimeout)
	defer cancel()

	result := d.Send(ctx, payload)
	if result.Channel == "" {
		result.Channel = ch
	}
	return result
}

// buildPayload compiles the channel-appropriate content. A missing template
// or missing channel variant degrades to the notification's raw title and
// message; delivery is never blocked by a templating defect.
func (o *Orchestrator) buildPayload(notif models.Notification, ch models.Channel, contact contactInfo) dispatch.Payload {
	payload := dispatch.Payload{
		To:             contact.addressFor(ch),
		Subject:        notif.Title,
		Body:           notif.Message,
		NotificationID: notif.ID,
		CorrelationID:  notif.Metadata["correlation_id"],
	}

	var tpl models.Template
	if notif.TemplateID != nil {
		var err error
		tpl, err = o.registry.Get(*notif.TemplateID)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("notification_id", notif.ID).
				Str("template_id", *notif.TemplateID).
				Msg("template lookup failed, falling back to raw content")
		}
	}

	switch ch {
	case models.ChannelEmail:
		if tpl.Email != nil {
			payload.Subject = o.compiler.Compile(tpl.Email.Subject, notif.TemplateData)
			payload.Body = o.compiler.Compile(tpl.Email.Text, notif.TemplateData)
			payload.HTMLBody = o.compiler.Compile(tpl.Email.HTML, notif.TemplateData)
		}
	case models.ChannelSMS:
		if tpl.SMS != nil {
			payload.Body = o.compiler.Compile(tpl.SMS.Body, notif.TemplateData)
		}
		if media := notif.Metadata["media_urls"]; media != "" {
			payload.MediaURLs = strings.Split(media, ",")
		}
	case models.ChannelPush:
		if tpl.Push != nil {
			payload.Subject = o.compiler.Compile(tpl.Push.Title, notif.TemplateData)
			payload.Body = o.compiler.Compile(tpl.Push.Body, notif.TemplateData)
		}
	}
	return payload
}

func (o *Orchestrator) loadPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	prefs, err := o.prefRepo.Get(ctx, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load preferences")
	}
	return &prefs, nil
}

type contactInfo struct {
	email string
	phone string
}

func (c contactInfo) addressFor(ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return c.email
	case models.ChannelSMS:
		return c.phone
	}
	return ""
}

// contactFrom resolves channel addressing: per-request metadata overrides the
// stored preference record.
func contactFrom(metadata map[string]string, prefs *models.NotificationPreference) contactInfo {
	var contact contactInfo
	if prefs != nil {
		contact.email = prefs.Email
		contact.phone = prefs.Phone
	}
	if v := metadata["email"]; v != "" {
		contact.email = v
	}
	if v := metadata["phone"]; v != "" {
		contact.phone = v
	}
	return contact
}

func buildNotification(req models.NotificationRequest, channels []models.Channel) models.Notification {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	notif := models.Notification{
		ID:           uuid.NewString(),
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		Channels:     channels,
		TemplateData: req.TemplateData,
		Priority:     priority,
		Status:       models.StatusPending,
		ScheduledAt:  req.ScheduledAt,
		Metadata:     req.Metadata,
	}
	if uid := strings.TrimSpace(req.UserID); uid != "" {
		notif.UserID = &uid
	}
	if tid := strings.TrimSpace(req.TemplateID); tid != "" {
		notif.TemplateID = &tid
	}
	return notif
}

func validateRequest(req models.NotificationRequest) error {
	if strings.TrimSpace(req.Type) == "" {
		return errors.Wrap(ErrValidation, "type is required")
	}
	if len(req.Channels) == 0 {
		return errors.Wrap(ErrValidation, "at least one channel is required")
	}
	for _, ch := range req.Channels {
		if !ch.IsValid() {
			return errors.Wrapf(ErrValidation, "unknown channel %q", ch)
		}
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "" && strings.TrimSpace(req.TemplateID) == "" {
		return errors.Wrap(ErrValidation, "title, message, or template_id is required")
	}
	return nil
}
