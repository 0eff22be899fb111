// Package domain contains the append-only credit ledger model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryKind classifies a ledger entry by balance direction.
type EntryKind string

const (
	EntryKindEarned   EntryKind = "earned"
	EntryKindSpent    EntryKind = "spent"
	EntryKindRefunded EntryKind = "refunded"
	EntryKindExpired  EntryKind = "expired"
)

// EntrySource records what produced the entry.
type EntrySource string

const (
	SourceSignup              EntrySource = "signup"
	SourceAPIUsage            EntrySource = "api_usage"
	SourcePurchase            EntrySource = "purchase"
	SourceSubscription        EntrySource = "subscription"
	SourceSubscriptionRenewal EntrySource = "subscription_renewal"
	SourceSubscriptionUpdated EntrySource = "subscription_updated"
	SourceRefund              EntrySource = "refund"
)

// LedgerEntry is one immutable, signed balance mutation. Amount is negative
// for spent entries and positive for earned/refunded ones; ResultingBalance
// snapshots the account balance immediately after the mutation, so for any
// account the entries form a gapless trail where each resulting balance is
// the previous one plus the amount.
type LedgerEntry struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	AccountID        snowflake.ID `gorm:"not null;index:ix_credit_ledger_account_created"`
	Kind             EntryKind    `gorm:"type:text;not null"`
	Amount           int64        `gorm:"not null"`
	ResultingBalance int64        `gorm:"not null"`
	Source           EntrySource  `gorm:"type:text;not null"`
	SourceRef        *string      `gorm:"type:text;index"`
	Description      string       `gorm:"type:text;not null"`
	CreatedAt        time.Time    `gorm:"not null;index:ix_credit_ledger_account_created"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger_entries" }
