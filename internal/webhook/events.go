// Package webhook absorbs asynchronous delivery-status callbacks from the
// email and SMS providers and folds them back into stored delivery results.
package webhook

import "time"

type EventKind string

const (
	// Email provider events.
	KindProcessed    EventKind = "processed"
	KindDelivered    EventKind = "delivered"
	KindOpened       EventKind = "open"
	KindClicked      EventKind = "click"
	KindBounced      EventKind = "bounce"
	KindDropped      EventKind = "dropped"
	KindSpamReport   EventKind = "spamreport"
	KindUnsubscribed EventKind = "unsubscribe"

	// SMS provider events.
	KindQueued      EventKind = "queued"
	KindSent        EventKind = "sent"
	KindUndelivered EventKind = "undelivered"
	KindFailed      EventKind = "failed"
)

// terminalNegative reports whether the event means the message definitively
// did not reach the recipient. Only these rewrite a stored DeliveryResult;
// positive and informational events are logged for analytics.
func (k EventKind) terminalNegative() bool {
	switch k {
	case KindBounced, KindDropped, KindUndelivered, KindFailed:
		return true
	}
	return false
}

func (k EventKind) known() bool {
	switch k {
	case KindProcessed, KindDelivered, KindOpened, KindClicked, KindBounced,
		KindDropped, KindSpamReport, KindUnsubscribed, KindQueued, KindSent,
		KindUndelivered, KindFailed:
		return true
	}
	return false
}

// DeliveryStatusUpdate is the provider-neutral form of one callback event.
type DeliveryStatusUpdate struct {
	Provider  string
	MessageID string
	Kind      EventKind
	Timestamp time.Time
	Detail    string
}
