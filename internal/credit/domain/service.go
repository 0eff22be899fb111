package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
)

type DebitRequest struct {
	AccountID snowflake.ID
	Amount    int64
	Endpoint  string
	RequestID string
}

type CreditRequest struct {
	AccountID   snowflake.ID
	Amount      int64
	Source      EntrySource
	SourceRef   string
	Description string
}

type ResetRequest struct {
	AccountID snowflake.ID
	Allowance int64
	Reason    EntrySource
	SourceRef string
}

type ListEntriesRequest struct {
	pagination.Pagination
	AccountID snowflake.ID
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

// Service is the credit accounting engine. Every mutating call executes the
// read-validate-write-append sequence inside one transaction; CheckBalance
// is advisory only and the authoritative check happens inside Debit itself.
type Service interface {
	// CheckBalance reports whether the account can afford the given cost.
	// Never mutates; the answer can be stale by the time a Debit runs.
	CheckBalance(ctx context.Context, accountID snowflake.ID, required int64) (bool, error)

	// Debit atomically deducts credits, failing with ErrInsufficientCredits
	// when the balance inside the transaction is below amount. On success
	// it appends a spent ledger entry and a usage audit row and returns the
	// new balance.
	Debit(ctx context.Context, req DebitRequest) (int64, error)

	// Credit grants credits additively. Idempotency is the caller's duty:
	// the billing reconciler fences with a unique payment record before
	// calling in.
	Credit(ctx context.Context, req CreditRequest) error

	// ResetToPlanAllowance sets the balance to exactly allowance. The ledger
	// entry carries the signed delta from the prior balance so the trail
	// stays additive.
	ResetToPlanAllowance(ctx context.Context, req ResetRequest) error

	// Refund grants credits back with a refunded entry.
	Refund(ctx context.Context, req CreditRequest) error

	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)

	// CreditTx and ResetToPlanAllowanceTx run inside the caller's
	// transaction so a reconciler event applies all of its effects
	// atomically.
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) error
	ResetToPlanAllowanceTx(ctx context.Context, tx *gorm.DB, req ResetRequest) error
}
