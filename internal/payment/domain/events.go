package domain

import "time"

// BillingEvent is the normalized form of a provider webhook event. The set of
// implementations is closed: adapters translate raw payloads into exactly one
// of the variants below, and anything they cannot classify becomes Unknown.
type BillingEvent interface {
	EventID() string
	EventType() string

	billingEvent()
}

// EventMeta carries the provider-assigned identity shared by every variant.
type EventMeta struct {
	ID         string
	Type       string
	OccurredAt time.Time
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (EventMeta) billingEvent()       {}

// CheckoutCompleted signals a finished checkout session, either the start of
// a subscription or a one-time credit package purchase.
type CheckoutCompleted struct {
	EventMeta

	CheckoutSessionID string
	CustomerID        string
	PaymentIntentID   string
	SubscriptionID    string
	UserRef           string
	Mode              string
	PriceID           string
	PackageCode       string
	AmountTotal       int64
	Currency          string
}

// SubscriptionChanged covers both subscription creation and later plan or
// status transitions.
type SubscriptionChanged struct {
	EventMeta

	SubscriptionID    string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

// SubscriptionDeleted signals a subscription that ended at the provider.
type SubscriptionDeleted struct {
	EventMeta

	SubscriptionID string
	CustomerID     string
}

// InvoicePaid signals a successful recurring charge.
type InvoicePaid struct {
	EventMeta

	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	Currency       string
}

// InvoicePaymentFailed signals a failed recurring charge.
type InvoicePaymentFailed struct {
	EventMeta

	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountDue      int64
	Currency       string
}

// PaymentIntentSucceeded confirms an intent already correlated by a checkout
// session; it only advances payment record status.
type PaymentIntentSucceeded struct {
	EventMeta

	PaymentIntentID string
	Amount          int64
	Currency        string
}

// PaymentIntentFailed marks a correlated intent as failed.
type PaymentIntentFailed struct {
	EventMeta

	PaymentIntentID string
	FailureMessage  string
}

// Unknown is the catch-all for event types the adapter recognizes as
// well-formed but does not handle. The reconciler acknowledges and drops it.
type Unknown struct {
	EventMeta
}
