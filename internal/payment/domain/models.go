// Package domain contains payment receipts, the processed-event fence, and
// the closed billing event union consumed by the reconciler.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus tracks provider-side payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentType classifies what a payment bought.
type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeCredits      PaymentType = "credits"
	PaymentTypeOneTime      PaymentType = "one_time"
)

// PaymentRecord is both the receipt and the idempotency fence for
// provider-side money movement: each external correlation id may appear at
// most once, so a retried delivery that tries to insert the same record
// becomes a benign no-op.
type PaymentRecord struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	AccountID         snowflake.ID      `gorm:"not null;index"`
	Provider          string            `gorm:"type:text;not null"`
	CheckoutSessionID *string           `gorm:"type:text;uniqueIndex"`
	PaymentIntentID   *string           `gorm:"type:text;uniqueIndex"`
	InvoiceID         *string           `gorm:"type:text;uniqueIndex"`
	Amount            int64             `gorm:"not null"`
	Currency          string            `gorm:"type:text;not null"`
	Status            PaymentStatus     `gorm:"type:text;not null"`
	Type              PaymentType       `gorm:"type:text;not null"`
	CreditsGranted    int64             `gorm:"not null;default:0"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payment_records" }

// EventRecord fences provider event deliveries: a given provider event id is
// applied at most once regardless of how many times it is delivered.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }
