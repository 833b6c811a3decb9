package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/config"
	"github.com/notifyhq/notification-engine/internal/models"
)

const emailProvider = "smtp"

var emailAddressPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// EmailDispatcher delivers through an SMTP relay. A Message-ID is generated
// per send so provider delivery callbacks can be correlated back to the
// originating DeliveryResult.
type EmailDispatcher struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	logger   zerolog.Logger

	// sendMail is swapped in tests; defaults to smtp.SendMail.
	sendMail func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailDispatcher(cfg config.EmailConfig, logger zerolog.Logger) (*EmailDispatcher, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email dispatcher")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email dispatcher")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailDispatcher{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		timeout:  15 * time.Second,
		logger:   logger.With().Str("dispatcher", "email").Logger(),
		sendMail: smtp.SendMail,
	}, nil
}

func (d *EmailDispatcher) Channel() models.Channel {
	return models.ChannelEmail
}

func (d *EmailDispatcher) Send(ctx context.Context, payload Payload) models.DeliveryResult {
	to := strings.TrimSpace(payload.To)
	if !emailAddressPattern.MatchString(to) {
		return failure(models.ChannelEmail, emailProvider, fmt.Sprintf("invalid email address: %q", to))
	}

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), d.host)
	message := d.buildMessage(to, messageID, payload)
	addr := fmt.Sprintf("%s:%d", d.host, d.port)

	var auth smtp.Auth
	if d.username != "" {
		auth = smtp.PlainAuth("", d.username, d.password, d.host)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.sendMail(addr, auth, d.from, []string{to}, message)
	}()

	select {
	case <-ctx.Done():
		return failure(models.ChannelEmail, emailProvider, fmt.Sprintf("smtp send timed out: %v", ctx.Err()))
	case err := <-errCh:
		if err != nil {
			return failure(models.ChannelEmail, emailProvider, err.Error())
		}
	}

	d.logger.Info().
		Str("notification_id", payload.NotificationID).
		Str("message_id", messageID).
		Str("to", to).
		Msg("email dispatched")

	return models.DeliveryResult{
		Channel:   models.ChannelEmail,
		Success:   true,
		MessageID: messageID,
		Provider:  emailProvider,
	}
}

// buildMessage assembles the MIME message. When an HTML body is present the
// message goes out as multipart/alternative with the plain text first; broken
// markup is sent as-is rather than rejected, the receiving client renders
// what it can.
func (d *EmailDispatcher) buildMessage(to, messageID string, payload Payload) []byte {
	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		subject = "Notification"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", d.from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	b.WriteString("MIME-Version: 1.0\r\n")

	if strings.TrimSpace(payload.HTMLBody) == "" {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(payload.Body)
		return []byte(b.String())
	}

	boundary := "np-" + uuid.NewString()
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))
	b.WriteString(fmt.Sprintf("--%s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n", boundary))
	b.WriteString(payload.Body)
	b.WriteString(fmt.Sprintf("\r\n--%s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n", boundary))
	b.WriteString(payload.HTMLBody)
	b.WriteString(fmt.Sprintf("\r\n--%s--\r\n", boundary))
	return []byte(b.String())
}
