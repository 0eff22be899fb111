// Package domain contains persistence models for billing accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/plan"
)

// SubscriptionStatus mirrors the provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusNone              SubscriptionStatus = "none"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

// Account is the billing and credit identity of one user. CreditBalance is a
// denormalized aggregate over credit_ledger_entries; both are only ever
// written together inside one transaction.
type Account struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	UserRef                string             `gorm:"type:text;not null;uniqueIndex"`
	Email                  string             `gorm:"type:text;not null"`
	CreditBalance          int64              `gorm:"not null;default:0"`
	PlanTier               plan.Tier          `gorm:"type:text;not null;default:'free'"`
	SubscriptionStatus     SubscriptionStatus `gorm:"type:text;not null;default:'none'"`
	ProviderCustomerID     *string            `gorm:"type:text;uniqueIndex"`
	ProviderSubscriptionID *string            `gorm:"type:text;index"`
	CurrentPeriodStart     *time.Time         `gorm:""`
	CurrentPeriodEnd       *time.Time         `gorm:""`
	AnonymizedAt           *time.Time         `gorm:""`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Profile is the projection read by entitlement checks and the profile
// endpoint. Only the billing reconciler mutates the subscription fields
// behind it.
type Profile struct {
	AccountID          snowflake.ID       `json:"account_id"`
	CreditBalance      int64              `json:"credit_balance"`
	PlanTier           plan.Tier          `json:"plan_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
}
