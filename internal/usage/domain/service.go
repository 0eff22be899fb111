package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service serves the account activity feed built from debit audit rows.
type Service interface {
	ListRecent(ctx context.Context, accountID snowflake.ID, limit int) ([]UsageRecord, error)
}
