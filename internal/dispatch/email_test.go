package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhq/notification-engine/internal/config"
	"github.com/notifyhq/notification-engine/internal/models"
)

func newEmailDispatcher(t *testing.T) *EmailDispatcher {
	t.Helper()
	d, err := NewEmailDispatcher(config.EmailConfig{
		From:     "noreply@example.com",
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
	}, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestEmailDispatcher_Send(t *testing.T) {
	d := newEmailDispatcher(t)

	var sentTo []string
	var sentMsg []byte
	d.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = msg
		return nil
	}

	result := d.Send(context.Background(), Payload{
		To:      "user@example.com",
		Subject: "Order confirmed",
		Body:    "Thanks for your order.",
	})

	assert.True(t, result.Success)
	assert.Equal(t, models.ChannelEmail, result.Channel)
	assert.Equal(t, "smtp", result.Provider)
	assert.NotEmpty(t, result.MessageID)
	assert.Equal(t, []string{"user@example.com"}, sentTo)
	assert.Contains(t, string(sentMsg), "Subject: Order confirmed")
	assert.Contains(t, string(sentMsg), result.MessageID)
}

func TestEmailDispatcher_RejectsInvalidAddress(t *testing.T) {
	d := newEmailDispatcher(t)
	d.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("smtp must not be dialed for an invalid address")
		return nil
	}

	for _, addr := range []string{"", "not-an-email", "user@", "@example.com", "user @example.com"} {
		result := d.Send(context.Background(), Payload{To: addr, Body: "hi"})
		assert.False(t, result.Success, "address %q should be rejected", addr)
		assert.Contains(t, result.Error, "invalid email address")
	}
}

func TestEmailDispatcher_ProviderFailure(t *testing.T) {
	d := newEmailDispatcher(t)
	d.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		return fmt.Errorf("550 mailbox unavailable")
	}

	result := d.Send(context.Background(), Payload{To: "user@example.com", Body: "hi"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "550")
}

func TestEmailDispatcher_MultipartMessage(t *testing.T) {
	d := newEmailDispatcher(t)

	var sentMsg string
	d.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sentMsg = string(msg)
		return nil
	}

	// Broken markup still goes out; the receiving client renders what it can.
	result := d.Send(context.Background(), Payload{
		To:       "user@example.com",
		Subject:  "hello",
		Body:     "plain version",
		HTMLBody: "<h1>unclosed header",
	})

	require.True(t, result.Success)
	assert.Contains(t, sentMsg, "multipart/alternative")
	assert.Contains(t, sentMsg, "plain version")
	assert.Contains(t, sentMsg, "<h1>unclosed header")
	assert.True(t, strings.Contains(sentMsg, "text/html"))
}

func TestEmailDispatcher_Timeout(t *testing.T) {
	d := newEmailDispatcher(t)
	block := make(chan struct{})
	defer close(block)
	d.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		<-block
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Send(ctx, Payload{To: "user@example.com", Body: "hi"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}
