package models

import "time"

// NotificationRequest is a single submission as received from a collaborating
// service.
type NotificationRequest struct {
	UserID       string            `json:"user_id,omitempty"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Channels     []Channel         `json:"channels"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Priority     Priority          `json:"priority,omitempty"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`
	// Metadata carries channel addressing (email, phone, media_urls) and
	// correlation IDs. Addressing here overrides the stored preference record.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EmailRequest is a raw email send that bypasses preference resolution.
type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`
}

// SMSRequest is a raw SMS send that bypasses preference resolution.
type SMSRequest struct {
	To        string   `json:"to"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// BulkItemResult reports the outcome of one item in a bulk submission. The
// original request is echoed back on failure for diagnostics.
type BulkItemResult struct {
	Index          int                  `json:"index"`
	NotificationID string               `json:"notification_id,omitempty"`
	Status         Status               `json:"status"`
	Success        bool                 `json:"success"`
	Error          string               `json:"error,omitempty"`
	Request        *NotificationRequest `json:"request,omitempty"`
}

// BulkSummary totals the per-item outcomes of a bulk submission.
type BulkSummary struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Partial   int `json:"partial"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}
