package models

// EmailContent is the email variant of a template: a subject plus HTML and
// plain-text bodies.
type EmailContent struct {
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// SMSContent is the short-message variant of a template.
type SMSContent struct {
	Body string `json:"body"`
}

// PushContent is the push variant of a template.
type PushContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Template is an immutable, versionless message template keyed by ID. Each
// channel the template supports carries its own content variant; a nil
// variant means the template does not cover that channel.
type Template struct {
	ID    string        `json:"id"`
	Email *EmailContent `json:"email,omitempty"`
	SMS   *SMSContent   `json:"sms,omitempty"`
	Push  *PushContent  `json:"push,omitempty"`
}
