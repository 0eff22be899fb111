package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/credit/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// GetBalance reads the current balance. The bool reports whether the
	// account exists.
	GetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, bool, error)

	// GetBalanceForUpdate reads the balance under a row lock. Must run
	// inside a transaction.
	GetBalanceForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, bool, error)

	// DebitBalance conditionally deducts amount and returns the new
	// balance. The bool is false when the account is missing or the balance
	// was below amount; the conditional update is what closes the
	// check-then-act race between concurrent debits.
	DebitBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) (int64, bool, error)

	// CreditBalance adds amount and returns the new balance. The bool is
	// false when the account is missing.
	CreditBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) (int64, bool, error)

	// SetBalance overwrites the balance.
	SetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, balance int64) error

	InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error

	// ListEntries returns up to limit+1 entries for the account, newest
	// first, starting strictly after the cursor position when one is given.
	ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID, before *time.Time, beforeID snowflake.ID, limit int) ([]domain.LedgerEntry, error)
}

type balanceRow struct {
	CreditBalance int64
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, bool, error) {
	var rows []balanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT credit_balance FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].CreditBalance, true, nil
}

func (r *repo) GetBalanceForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, bool, error) {
	var rows []balanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT credit_balance FROM accounts WHERE id = ? FOR UPDATE`,
		accountID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].CreditBalance, true, nil
}

func (r *repo) DebitBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) (int64, bool, error) {
	var rows []balanceRow
	err := db.WithContext(ctx).Raw(
		`UPDATE accounts
		 SET credit_balance = credit_balance - ?, updated_at = ?
		 WHERE id = ? AND credit_balance >= ?
		 RETURNING credit_balance`,
		amount,
		time.Now().UTC(),
		accountID,
		amount,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].CreditBalance, true, nil
}

func (r *repo) CreditBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64) (int64, bool, error) {
	var rows []balanceRow
	err := db.WithContext(ctx).Raw(
		`UPDATE accounts
		 SET credit_balance = credit_balance + ?, updated_at = ?
		 WHERE id = ?
		 RETURNING credit_balance`,
		amount,
		time.Now().UTC(),
		accountID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].CreditBalance, true, nil
}

func (r *repo) SetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, balance int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credit_balance = ?, updated_at = ?
		 WHERE id = ?`,
		balance,
		time.Now().UTC(),
		accountID,
	).Error
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_ledger_entries (
			id, account_id, kind, amount, resulting_balance, source, source_ref, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AccountID,
		string(entry.Kind),
		entry.Amount,
		entry.ResultingBalance,
		string(entry.Source),
		entry.SourceRef,
		entry.Description,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID, before *time.Time, beforeID snowflake.ID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 25
	}

	stmt := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)
	if before != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", *before, *before, beforeID)
	}

	var entries []domain.LedgerEntry
	err := stmt.Find(&entries).Error
	return entries, err
}
