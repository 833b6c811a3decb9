package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/config"
	"github.com/notifyhq/notification-engine/internal/models"
)

const (
	smsProvider      = "twilio"
	truncationMarker = "..."
)

// e164Pattern: leading +, first digit non-zero, 2 to 15 digits total.
var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)

// SMSDispatcher delivers through a Twilio-style REST API. Bodies longer than
// the configured maximum are truncated with a marker rather than rejected.
type SMSDispatcher struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	maxLength  int
	client     *http.Client
	logger     zerolog.Logger
}

func NewSMSDispatcher(cfg config.SMSConfig, logger zerolog.Logger) (*SMSDispatcher, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("account_sid is required for sms dispatcher")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("from number is required for sms dispatcher")
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 160
	}
	if maxLength < len(truncationMarker) {
		maxLength = len(truncationMarker)
	}

	return &SMSDispatcher{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    baseURL,
		maxLength:  maxLength,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("dispatcher", "sms").Logger(),
	}, nil
}

func (d *SMSDispatcher) Channel() models.Channel {
	return models.ChannelSMS
}

func (d *SMSDispatcher) Send(ctx context.Context, payload Payload) models.DeliveryResult {
	to := strings.TrimSpace(payload.To)
	if !e164Pattern.MatchString(to) {
		return failure(models.ChannelSMS, smsProvider, fmt.Sprintf("invalid E.164 phone number: %q", to))
	}

	// The length limit counts characters, not bytes; slicing on runes keeps
	// multi-byte bodies intact at the cut point.
	body := payload.Body
	if runes := []rune(body); len(runes) > d.maxLength {
		body = string(runes[:d.maxLength-len(truncationMarker)]) + truncationMarker
		d.logger.Debug().
			Str("notification_id", payload.NotificationID).
			Int("max_length", d.maxLength).
			Msg("sms body truncated")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", d.from)
	form.Set("Body", body)
	for _, mediaURL := range payload.MediaURLs {
		form.Add("MediaUrl", mediaURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", d.baseURL, d.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(models.ChannelSMS, smsProvider, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.accountSID, d.authToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return failure(models.ChannelSMS, smsProvider, fmt.Sprintf("provider request failed: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(models.ChannelSMS, smsProvider, fmt.Sprintf("read provider response: %v", err))
	}

	var parsed struct {
		SID          string `json:"sid"`
		Status       string `json:"status"`
		ErrorMessage string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
		return failure(models.ChannelSMS, smsProvider, fmt.Sprintf("decode provider response: %v", err))
	}

	if resp.StatusCode >= 300 {
		errMsg := parsed.ErrorMessage
		if errMsg == "" {
			errMsg = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		return failure(models.ChannelSMS, smsProvider, errMsg)
	}

	d.logger.Info().
		Str("notification_id", payload.NotificationID).
		Str("message_id", parsed.SID).
		Str("to", to).
		Msg("sms dispatched")

	return models.DeliveryResult{
		Channel:   models.ChannelSMS,
		Success:   true,
		MessageID: parsed.SID,
		Provider:  smsProvider,
	}
}
