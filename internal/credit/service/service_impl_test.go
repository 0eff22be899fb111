package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	"github.com/inkfold/inkfold/internal/clock"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	creditrepo "github.com/inkfold/inkfold/internal/credit/repository"
	creditservice "github.com/inkfold/inkfold/internal/credit/service"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	usagerepo "github.com/inkfold/inkfold/internal/usage/repository"
	"github.com/inkfold/inkfold/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&creditdomain.LedgerEntry{},
		&usagedomain.UsageRecord{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) creditdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return creditservice.NewService(creditservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      creditrepo.Provide(),
		UsageRepo: usagerepo.Provide(),
	})
}

func seedAccount(t *testing.T, db *gorm.DB, balance int64) snowflake.ID {
	t.Helper()

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	id := node.Generate()

	require.NoError(t, db.Create(&accountdomain.Account{
		ID:            id,
		UserRef:       "user_" + id.String(),
		CreditBalance: balance,
		PlanTier:      "free",
	}).Error)
	return id
}

func TestDebitStopsAtFloor(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)

	accountID := seedAccount(t, db, 10)

	expected := []int64{7, 4, 1}
	for i, want := range expected {
		clk.Advance(time.Second)
		balance, err := svc.Debit(ctx, creditdomain.DebitRequest{
			AccountID: accountID,
			Amount:    3,
			Endpoint:  "generations.draft",
			RequestID: fmt.Sprintf("req_%d", i),
		})
		require.NoError(t, err)
		assert.Equal(t, want, balance)
	}

	_, err := svc.Debit(ctx, creditdomain.DebitRequest{
		AccountID: accountID,
		Amount:    3,
		Endpoint:  "generations.draft",
	})
	require.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)

	var account accountdomain.Account
	require.NoError(t, db.First(&account, "id = ?", accountID).Error)
	assert.Equal(t, int64(1), account.CreditBalance)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, db.Order("created_at ASC, id ASC").Find(&entries, "account_id = ?", accountID).Error)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, creditdomain.EntryKindSpent, entry.Kind)
		assert.Equal(t, int64(-3), entry.Amount)
		assert.Equal(t, expected[i], entry.ResultingBalance)
	}

	var usage []usagedomain.UsageRecord
	require.NoError(t, db.Find(&usage, "account_id = ?", accountID).Error)
	assert.Len(t, usage, 3)
}

func TestDebitConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock())

	accountID := seedAccount(t, db, 3)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Debit(ctx, creditdomain.DebitRequest{
				AccountID: accountID,
				Amount:    2,
				Endpoint:  "generations.draft",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, denied int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, creditdomain.ErrInsufficientCredits):
			denied++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, denied)

	var account accountdomain.Account
	require.NoError(t, db.First(&account, "id = ?", accountID).Error)
	assert.Equal(t, int64(1), account.CreditBalance)
}

func TestDebitMissingAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock())

	_, err := svc.Debit(ctx, creditdomain.DebitRequest{
		AccountID: snowflake.ID(12345),
		Amount:    1,
		Endpoint:  "generations.draft",
	})
	require.ErrorIs(t, err, creditdomain.ErrAccountNotFound)
}

func TestCreditAndRefundAreAdditive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)

	accountID := seedAccount(t, db, 5)

	require.NoError(t, svc.Credit(ctx, creditdomain.CreditRequest{
		AccountID: accountID,
		Amount:    50,
		Source:    creditdomain.SourcePurchase,
		SourceRef: "cs_test_1",
	}))
	clk.Advance(time.Second)
	require.NoError(t, svc.Refund(ctx, creditdomain.CreditRequest{
		AccountID: accountID,
		Amount:    5,
		SourceRef: "re_test_1",
	}))

	var account accountdomain.Account
	require.NoError(t, db.First(&account, "id = ?", accountID).Error)
	assert.Equal(t, int64(60), account.CreditBalance)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, db.Order("created_at ASC, id ASC").Find(&entries, "account_id = ?", accountID).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, creditdomain.EntryKindEarned, entries[0].Kind)
	assert.Equal(t, int64(55), entries[0].ResultingBalance)
	assert.Equal(t, creditdomain.EntryKindRefunded, entries[1].Kind)
	assert.Equal(t, creditdomain.SourceRefund, entries[1].Source)
	assert.Equal(t, int64(60), entries[1].ResultingBalance)
}

func TestResetToPlanAllowanceWritesDelta(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)

	accountID := seedAccount(t, db, 7)

	require.NoError(t, svc.ResetToPlanAllowance(ctx, creditdomain.ResetRequest{
		AccountID: accountID,
		Allowance: 150,
		Reason:    creditdomain.SourceSubscriptionRenewal,
		SourceRef: "in_test_1",
	}))

	clk.Advance(time.Second)
	require.NoError(t, svc.ResetToPlanAllowance(ctx, creditdomain.ResetRequest{
		AccountID: accountID,
		Allowance: 25,
		Reason:    creditdomain.SourceSubscriptionUpdated,
	}))

	var account accountdomain.Account
	require.NoError(t, db.First(&account, "id = ?", accountID).Error)
	assert.Equal(t, int64(25), account.CreditBalance)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, db.Order("created_at ASC, id ASC").Find(&entries, "account_id = ?", accountID).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(143), entries[0].Amount)
	assert.Equal(t, int64(150), entries[0].ResultingBalance)
	assert.Equal(t, int64(-125), entries[1].Amount)
	assert.Equal(t, int64(25), entries[1].ResultingBalance)
}

func TestListEntriesPaginates(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)

	accountID := seedAccount(t, db, 100)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		_, err := svc.Debit(ctx, creditdomain.DebitRequest{
			AccountID: accountID,
			Amount:    1,
			Endpoint:  "generations.rewrite",
		})
		require.NoError(t, err)
	}

	first, err := svc.ListEntries(ctx, creditdomain.ListEntriesRequest{
		AccountID: accountID,
	})
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	assert.False(t, first.HasMore)
	// Newest first.
	assert.Equal(t, int64(97), first.Entries[0].ResultingBalance)
	assert.Equal(t, int64(99), first.Entries[2].ResultingBalance)

	page := creditdomain.ListEntriesRequest{AccountID: accountID}
	page.PageSize = 2
	second, err := svc.ListEntries(ctx, page)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.True(t, second.HasMore)
	require.NotEmpty(t, second.NextPageToken)

	page.PageToken = second.NextPageToken
	third, err := svc.ListEntries(ctx, page)
	require.NoError(t, err)
	require.Len(t, third.Entries, 1)
	assert.False(t, third.HasMore)
	assert.Equal(t, int64(99), third.Entries[0].ResultingBalance)
}
