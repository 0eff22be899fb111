package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	accountrepo "github.com/inkfold/inkfold/internal/account/repository"
	accountservice "github.com/inkfold/inkfold/internal/account/service"
	"github.com/inkfold/inkfold/internal/clock"
	"github.com/inkfold/inkfold/internal/config"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	creditrepo "github.com/inkfold/inkfold/internal/credit/repository"
	creditservice "github.com/inkfold/inkfold/internal/credit/service"
	"github.com/inkfold/inkfold/internal/plan"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	usagerepo "github.com/inkfold/inkfold/internal/usage/repository"
	"github.com/inkfold/inkfold/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAccountService(t *testing.T) (accountdomain.Service, *gorm.DB) {
	t.Helper()

	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&creditdomain.LedgerEntry{},
		&usagedomain.UsageRecord{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	creditSvc := creditservice.NewService(creditservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      creditrepo.Provide(),
		UsageRepo: usagerepo.Provide(),
	})

	svc := accountservice.NewService(accountservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Cfg:       config.Config{SignupGrantCredits: 25},
		Repo:      accountrepo.Provide(),
		CreditSvc: creditSvc,
	})
	return svc, db
}

func TestProvisionGrantsSignupCredits(t *testing.T) {
	ctx := context.Background()
	svc, db := setupAccountService(t)

	account, err := svc.Provision(ctx, "user_abc", "writer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user_abc", account.UserRef)
	assert.Equal(t, plan.TierFree, account.PlanTier)
	assert.Equal(t, int64(25), account.CreditBalance)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, db.Find(&entries, "account_id = ?", account.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, creditdomain.EntryKindEarned, entries[0].Kind)
	assert.Equal(t, creditdomain.SourceSignup, entries[0].Source)
	assert.Equal(t, int64(25), entries[0].Amount)
	assert.Equal(t, "signup grant", entries[0].Description)
}

func TestProvisionIsIdempotentPerUserRef(t *testing.T) {
	ctx := context.Background()
	svc, db := setupAccountService(t)

	first, err := svc.Provision(ctx, "user_abc", "writer@example.com")
	require.NoError(t, err)
	second, err := svc.Provision(ctx, "user_abc", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&creditdomain.LedgerEntry{}).
		Where("account_id = ?", first.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProvisionRejectsBlankUserRef(t *testing.T) {
	svc, _ := setupAccountService(t)

	_, err := svc.Provision(context.Background(), "   ", "writer@example.com")
	require.ErrorIs(t, err, accountdomain.ErrInvalidUserRef)
}

func TestGetProfileProjectsAccountState(t *testing.T) {
	ctx := context.Background()
	svc, db := setupAccountService(t)

	account, err := svc.Provision(ctx, "user_abc", "writer@example.com")
	require.NoError(t, err)

	periodEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&accountdomain.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"plan_tier":           plan.TierPro,
			"subscription_status": accountdomain.SubscriptionStatusActive,
			"current_period_end":  periodEnd,
		}).Error)

	profile, err := svc.GetProfile(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, profile.AccountID)
	assert.Equal(t, int64(25), profile.CreditBalance)
	assert.Equal(t, plan.TierPro, profile.PlanTier)
	assert.Equal(t, accountdomain.SubscriptionStatusActive, profile.SubscriptionStatus)
	require.NotNil(t, profile.CurrentPeriodEnd)
	assert.True(t, profile.CurrentPeriodEnd.Equal(periodEnd))
}

func TestGetProfileUnknownAccount(t *testing.T) {
	svc, _ := setupAccountService(t)

	_, err := svc.GetProfile(context.Background(), snowflake.ID(987654))
	require.ErrorIs(t, err, accountdomain.ErrAccountNotFound)
}

func TestAnonymizeScrubsAndRefuses(t *testing.T) {
	ctx := context.Background()
	svc, db := setupAccountService(t)

	account, err := svc.Provision(ctx, "user_abc", "writer@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Anonymize(ctx, account.ID))

	var stored accountdomain.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Empty(t, stored.Email)
	require.NotNil(t, stored.AnonymizedAt)
	// Ledger survives anonymization.
	var count int64
	require.NoError(t, db.Model(&creditdomain.LedgerEntry{}).
		Where("account_id = ?", account.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.ErrorIs(t, svc.Anonymize(ctx, account.ID), accountdomain.ErrAccountAnonymized)
}
