package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	ProviderSendGrid = "sendgrid"
	ProviderTwilio   = "twilio"

	signatureHeader = "X-Webhook-Signature"
)

// Ingestor parses provider-specific callback payloads into normalized
// delivery-status updates and hands them to the applier. Parsing problems
// and unknown event kinds are non-fatal.
type Ingestor struct {
	applier *Applier
	secrets map[string]string
	logger  zerolog.Logger
}

func NewIngestor(applier *Applier, secrets map[string]string, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		applier: applier,
		secrets: secrets,
		logger:  logger.With().Str("component", "webhook_ingestor").Logger(),
	}
}

// Ingest reads one provider callback request. Returns false when the payload
// could not be parsed or its signature check failed; events with unknown
// kinds are logged and skipped without failing the whole request.
func (ing *Ingestor) Ingest(provider string, r *http.Request) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		ing.logger.Error().Err(err).Str("provider", provider).Msg("failed to read webhook body")
		return false
	}

	if !ing.verifySignature(provider, r, body) {
		ing.logger.Warn().Str("provider", provider).Msg("webhook signature verification failed")
		return false
	}

	var updates []DeliveryStatusUpdate
	switch provider {
	case ProviderSendGrid:
		updates, err = parseSendGrid(body)
	case ProviderTwilio:
		updates, err = parseTwilio(body)
	default:
		ing.logger.Warn().Str("provider", provider).Msg("unknown webhook provider")
		return false
	}
	if err != nil {
		ing.logger.Error().Err(err).Str("provider", provider).Msg("failed to parse webhook payload")
		return false
	}

	for _, update := range updates {
		if !update.Kind.known() {
			ing.logger.Warn().
				Str("provider", provider).
				Str("event", string(update.Kind)).
				Str("message_id", update.MessageID).
				Msg("unknown webhook event kind, ignoring")
			continue
		}
		if update.MessageID == "" {
			ing.logger.Warn().
				Str("provider", provider).
				Str("event", string(update.Kind)).
				Msg("webhook event without message id, ignoring")
			continue
		}
		ing.applier.Enqueue(update)
	}
	return true
}

// verifySignature checks the HMAC-SHA256 shared-secret signature when one is
// configured for the provider. An empty secret disables the check.
func (ing *Ingestor) verifySignature(provider string, r *http.Request, body []byte) bool {
	secret := ing.secrets[provider]
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := strings.TrimSpace(r.Header.Get(signatureHeader))
	return got != "" && hmac.Equal([]byte(expected), []byte(got))
}

type sendGridEvent struct {
	Email       string `json:"email"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	Timestamp   int64  `json:"timestamp"`
	Reason      string `json:"reason"`
}

// parseSendGrid handles the email provider's event webhook: a JSON array of
// events. The provider suffixes its message id with a filter qualifier after
// the first dot; the stored Message-ID is the part before it.
func parseSendGrid(body []byte) ([]DeliveryStatusUpdate, error) {
	var events []sendGridEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, err
	}

	updates := make([]DeliveryStatusUpdate, 0, len(events))
	for _, evt := range events {
		messageID := evt.SGMessageID
		if dot := strings.Index(messageID, ".filter"); dot >= 0 {
			messageID = messageID[:dot]
		}
		updates = append(updates, DeliveryStatusUpdate{
			Provider:  ProviderSendGrid,
			MessageID: messageID,
			Kind:      EventKind(evt.Event),
			Timestamp: time.Unix(evt.Timestamp, 0),
			Detail:    evt.Reason,
		})
	}
	return updates, nil
}

// parseTwilio handles the SMS provider's status callback: one form-encoded
// event per request.
func parseTwilio(body []byte) ([]DeliveryStatusUpdate, error) {
	values, err := parseForm(body)
	if err != nil {
		return nil, err
	}

	detail := values.Get("ErrorMessage")
	if detail == "" && values.Get("ErrorCode") != "" {
		detail = "error code " + values.Get("ErrorCode")
	}

	return []DeliveryStatusUpdate{{
		Provider:  ProviderTwilio,
		MessageID: values.Get("MessageSid"),
		Kind:      EventKind(strings.ToLower(values.Get("MessageStatus"))),
		Timestamp: time.Now().UTC(),
		Detail:    detail,
	}}, nil
}
