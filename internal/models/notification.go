package models

import (
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// IsValid reports whether the channel is one of the known delivery media.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	// StatusProcessing marks a scheduled notification claimed by a scheduler
	// pass. A row in this state belongs to exactly one worker.
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// DeliveryResult is the per-channel outcome of one dispatch attempt.
type DeliveryResult struct {
	Channel   Channel `json:"channel"`
	Success   bool    `json:"success"`
	MessageID string  `json:"message_id,omitempty"`
	Provider  string  `json:"provider"`
	Error     string  `json:"error,omitempty"`
}

type Notification struct {
	ID              string            `json:"id" db:"id"`
	UserID          *string           `json:"user_id,omitempty" db:"user_id"`
	Type            string            `json:"type" db:"type"`
	Title           string            `json:"title" db:"title"`
	Message         string            `json:"message" db:"message"`
	Channels        []Channel         `json:"channels" db:"channels"`
	TemplateID      *string           `json:"template_id,omitempty" db:"template_id"`
	TemplateData    map[string]string `json:"template_data,omitempty" db:"template_data"`
	Priority        Priority          `json:"priority" db:"priority"`
	Status          Status            `json:"status" db:"status"`
	ScheduledAt     *time.Time        `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt          *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
	DeliveryResults []DeliveryResult  `json:"delivery_results" db:"delivery_results"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
	Version         int               `json:"-" db:"version"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// StatusFromResults derives the terminal status from per-channel outcomes.
// An empty result set means nothing was attempted (fully opted out) and
// counts as failed; callers distinguish that case by the empty slice.
func StatusFromResults(results []DeliveryResult) Status {
	if len(results) == 0 {
		return StatusFailed
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch succeeded {
	case len(results):
		return StatusSent
	case 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// DedupeChannels keeps the first occurrence of each channel, preserving
// submission order.
func DedupeChannels(channels []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(channels))
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
