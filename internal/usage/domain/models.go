// Package domain contains persistence models for api usage audit rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is the audit row written alongside every successful debit. It
// ties a credit deduction back to the request that caused it.
type UsageRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AccountID   snowflake.ID `gorm:"not null;index"`
	Endpoint    string       `gorm:"type:text;not null"`
	CreditsUsed int64        `gorm:"not null"`
	RequestID   string       `gorm:"type:text"`
	RecordedAt  time.Time    `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
