// Package domain contains the local mirror of provider subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	"github.com/inkfold/inkfold/internal/plan"
)

// Mirror is the local copy of one provider subscription. The unique lookup
// key is the provider subscription id, not the local row id, because inbound
// events only ever carry provider identifiers and created/updated events
// must upsert against the same row. Only the billing reconciler writes it.
type Mirror struct {
	ID                     snowflake.ID                     `gorm:"primaryKey"`
	AccountID              snowflake.ID                     `gorm:"not null;index"`
	ProviderSubscriptionID string                           `gorm:"type:text;not null;uniqueIndex"`
	ProviderCustomerID     string                           `gorm:"type:text;not null;index"`
	ProviderPriceID        string                           `gorm:"type:text;not null"`
	PlanTier               plan.Tier                        `gorm:"type:text;not null"`
	Status                 accountdomain.SubscriptionStatus `gorm:"type:text;not null"`
	CurrentPeriodStart     *time.Time                       `gorm:""`
	CurrentPeriodEnd       *time.Time                       `gorm:""`
	CreatedAt              time.Time                        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time                        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Mirror) TableName() string { return "provider_subscriptions" }
