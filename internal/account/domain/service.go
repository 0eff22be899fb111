package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrInvalidUserRef    = errors.New("invalid_user_ref")
	ErrAccountAnonymized = errors.New("account_anonymized")
	ErrDuplicateUserRef  = errors.New("duplicate_user_ref")
)

// Service provisions accounts and serves the account/subscription projection.
type Service interface {
	// Provision creates the account with its free-tier signup grant and the
	// matching ledger entry in one transaction. A second call with the same
	// userRef returns the existing account.
	Provision(ctx context.Context, userRef, email string) (*Account, error)

	GetByID(ctx context.Context, id snowflake.ID) (*Account, error)
	GetByUserRef(ctx context.Context, userRef string) (*Account, error)

	// GetProfile returns the plan/subscription projection plus the current
	// balance.
	GetProfile(ctx context.Context, id snowflake.ID) (*Profile, error)

	// Anonymize scrubs personal fields. Accounts are never deleted; the
	// ledger stays intact for audit.
	Anonymize(ctx context.Context, id snowflake.ID) error
}
