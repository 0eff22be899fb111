package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	accountrepo "github.com/inkfold/inkfold/internal/account/repository"
	"github.com/inkfold/inkfold/internal/clock"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	creditrepo "github.com/inkfold/inkfold/internal/credit/repository"
	creditservice "github.com/inkfold/inkfold/internal/credit/service"
	paymentdomain "github.com/inkfold/inkfold/internal/payment/domain"
	paymentrepo "github.com/inkfold/inkfold/internal/payment/repository"
	paymentservice "github.com/inkfold/inkfold/internal/payment/service"
	"github.com/inkfold/inkfold/internal/plan"
	subscriptiondomain "github.com/inkfold/inkfold/internal/subscription/domain"
	subscriptionrepo "github.com/inkfold/inkfold/internal/subscription/repository"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	usagerepo "github.com/inkfold/inkfold/internal/usage/repository"
	"github.com/inkfold/inkfold/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcilerFixture struct {
	db      *gorm.DB
	svc     paymentdomain.ReconcilerService
	node    *snowflake.Node
	clk     *clock.FakeClock
	account *accountdomain.Account
}

func setupReconciler(t *testing.T) *reconcilerFixture {
	t.Helper()

	db := dbtest.Open(t)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&creditdomain.LedgerEntry{},
		&usagedomain.UsageRecord{},
		&paymentdomain.EventRecord{},
		&paymentdomain.PaymentRecord{},
		&subscriptiondomain.Mirror{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	catalog, err := plan.NewCatalogHolder("", log)
	require.NoError(t, err)

	creditSvc := creditservice.NewService(creditservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      creditrepo.Provide(),
		UsageRepo: usagerepo.Provide(),
	})

	svc := paymentservice.NewService(paymentservice.Params{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Repo:             paymentrepo.Provide(),
		AccountRepo:      accountrepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		CreditSvc:        creditSvc,
		Catalog:          catalog,
	})

	customerID := "cus_test_1"
	account := &accountdomain.Account{
		ID:                 node.Generate(),
		UserRef:            "user_payment_test",
		CreditBalance:      25,
		PlanTier:           plan.TierFree,
		SubscriptionStatus: accountdomain.SubscriptionStatusNone,
		ProviderCustomerID: &customerID,
	}
	require.NoError(t, db.Create(account).Error)

	return &reconcilerFixture{db: db, svc: svc, node: node, clk: clk, account: account}
}

func (f *reconcilerFixture) balance(t *testing.T) int64 {
	t.Helper()
	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	return account.CreditBalance
}

func checkoutEvent(eventID string) *paymentdomain.CheckoutCompleted {
	return &paymentdomain.CheckoutCompleted{
		EventMeta: paymentdomain.EventMeta{
			ID:   eventID,
			Type: "checkout.session.completed",
		},
		CheckoutSessionID: "cs_test_1",
		CustomerID:        "cus_test_1",
		PaymentIntentID:   "pi_test_1",
		Mode:              "payment",
		PackageCode:       "credits_50",
		AmountTotal:       1299,
		Currency:          "usd",
	}
}

func TestCheckoutGrantsPackageCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)
	payload := []byte(`{"id":"evt_1"}`)

	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", checkoutEvent("evt_1"), payload))
	assert.Equal(t, int64(75), f.balance(t))

	// Same event id replayed.
	err := f.svc.ProcessEvent(ctx, "stripe", checkoutEvent("evt_1"), payload)
	require.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Equal(t, int64(75), f.balance(t))

	// Distinct event id, same checkout session: the record fence holds.
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", checkoutEvent("evt_2"), payload))
	assert.Equal(t, int64(75), f.balance(t))

	var records []paymentdomain.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, paymentdomain.PaymentTypeCredits, records[0].Type)
	assert.Equal(t, int64(50), records[0].CreditsGranted)
	assert.Equal(t, "USD", records[0].Currency)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, f.db.Find(&entries, "account_id = ?", f.account.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, creditdomain.SourcePurchase, entries[0].Source)
	assert.Equal(t, "Purchased credits_50", entries[0].Description)
}

func TestCheckoutUnknownPackageRecordsWithoutGrant(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := checkoutEvent("evt_3")
	ev.PackageCode = "credits_9000"
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	assert.Equal(t, int64(25), f.balance(t))
	var records []paymentdomain.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].CreditsGranted)
}

func TestSubscriptionChangedUpdatesProjectionAndMirror(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	periodStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	ev := &paymentdomain.SubscriptionChanged{
		EventMeta:      paymentdomain.EventMeta{ID: "evt_sub_1", Type: "customer.subscription.updated"},
		SubscriptionID: "sub_test_1",
		CustomerID:     "cus_test_1",
		Status:         "active",
		PriceID:        "price_unmapped",
		PeriodStart:    &periodStart,
		PeriodEnd:      &periodEnd,
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, accountdomain.SubscriptionStatusActive, account.SubscriptionStatus)
	// Unmapped prices resolve to the free tier.
	assert.Equal(t, plan.TierFree, account.PlanTier)
	require.NotNil(t, account.ProviderSubscriptionID)
	assert.Equal(t, "sub_test_1", *account.ProviderSubscriptionID)

	var mirror subscriptiondomain.Mirror
	require.NoError(t, f.db.First(&mirror, "provider_subscription_id = ?", "sub_test_1").Error)
	assert.Equal(t, f.account.ID, mirror.AccountID)
	assert.Equal(t, accountdomain.SubscriptionStatusActive, mirror.Status)
}

func TestSubscriptionChangedKeepsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := &paymentdomain.SubscriptionChanged{
		EventMeta:      paymentdomain.EventMeta{ID: "evt_sub_2", Type: "customer.subscription.updated"},
		SubscriptionID: "sub_test_2",
		CustomerID:     "cus_test_1",
		Status:         "paused",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, accountdomain.SubscriptionStatus("paused"), account.SubscriptionStatus)

	var mirror subscriptiondomain.Mirror
	require.NoError(t, f.db.First(&mirror, "provider_subscription_id = ?", "sub_test_2").Error)
	assert.Equal(t, accountdomain.SubscriptionStatus("paused"), mirror.Status)
}

func TestInvoicePaidResetsToMirrorTierAllowance(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	// The mirror carries the plan the invoice paid for, even while the
	// account projection still says free.
	require.NoError(t, f.db.Create(&subscriptiondomain.Mirror{
		ID:                     f.node.Generate(),
		AccountID:              f.account.ID,
		ProviderSubscriptionID: "sub_test_1",
		ProviderCustomerID:     "cus_test_1",
		ProviderPriceID:        "price_pro",
		PlanTier:               plan.TierPro,
		Status:                 accountdomain.SubscriptionStatusActive,
	}).Error)

	ev := &paymentdomain.InvoicePaid{
		EventMeta:      paymentdomain.EventMeta{ID: "evt_inv_1", Type: "invoice.paid"},
		InvoiceID:      "in_test_1",
		CustomerID:     "cus_test_1",
		SubscriptionID: "sub_test_1",
		AmountPaid:     2900,
		Currency:       "usd",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))
	assert.Equal(t, int64(150), f.balance(t))

	var records []paymentdomain.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, int64(150), records[0].CreditsGranted)
	assert.Equal(t, paymentdomain.PaymentTypeSubscription, records[0].Type)

	var entries []creditdomain.LedgerEntry
	require.NoError(t, f.db.Find(&entries, "account_id = ?", f.account.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, creditdomain.SourceSubscriptionRenewal, entries[0].Source)
	assert.Equal(t, int64(125), entries[0].Amount)
	assert.Equal(t, int64(150), entries[0].ResultingBalance)

	// Redelivery of the same invoice under a new event id changes nothing.
	ev2 := *ev
	ev2.ID = "evt_inv_2"
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", &ev2, []byte(`{}`)))
	assert.Equal(t, int64(150), f.balance(t))
}

func TestSubscriptionDeletedKeepsBalance(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	subID := "sub_test_1"
	require.NoError(t, f.db.Model(&accountdomain.Account{}).
		Where("id = ?", f.account.ID).
		Updates(map[string]any{
			"plan_tier":                plan.TierPro,
			"subscription_status":      accountdomain.SubscriptionStatusActive,
			"provider_subscription_id": subID,
			"credit_balance":           140,
		}).Error)
	require.NoError(t, f.db.Create(&subscriptiondomain.Mirror{
		ID:                     f.node.Generate(),
		AccountID:              f.account.ID,
		ProviderSubscriptionID: subID,
		ProviderCustomerID:     "cus_test_1",
		PlanTier:               plan.TierPro,
		Status:                 accountdomain.SubscriptionStatusActive,
	}).Error)

	ev := &paymentdomain.SubscriptionDeleted{
		EventMeta:      paymentdomain.EventMeta{ID: "evt_del_1", Type: "customer.subscription.deleted"},
		SubscriptionID: subID,
		CustomerID:     "cus_test_1",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, plan.TierFree, account.PlanTier)
	assert.Equal(t, accountdomain.SubscriptionStatusCanceled, account.SubscriptionStatus)
	assert.Equal(t, int64(140), account.CreditBalance)

	var mirror subscriptiondomain.Mirror
	require.NoError(t, f.db.First(&mirror, "provider_subscription_id = ?", subID).Error)
	assert.Equal(t, accountdomain.SubscriptionStatusCanceled, mirror.Status)
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := &paymentdomain.InvoicePaymentFailed{
		EventMeta:      paymentdomain.EventMeta{ID: "evt_fail_1", Type: "invoice.payment_failed"},
		InvoiceID:      "in_fail_1",
		CustomerID:     "cus_test_1",
		SubscriptionID: "",
		AmountDue:      2900,
		Currency:       "usd",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	var account accountdomain.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, accountdomain.SubscriptionStatusPastDue, account.SubscriptionStatus)
	assert.Equal(t, int64(25), account.CreditBalance)

	var records []paymentdomain.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, records[0].Status)
}

func TestPaymentIntentAdvancesRecordStatus(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := checkoutEvent("evt_1")
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	failed := &paymentdomain.PaymentIntentFailed{
		EventMeta:       paymentdomain.EventMeta{ID: "evt_pi_1", Type: "payment_intent.payment_failed"},
		PaymentIntentID: "pi_test_1",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", failed, []byte(`{}`)))

	var record paymentdomain.PaymentRecord
	require.NoError(t, f.db.First(&record, "payment_intent_id = ?", "pi_test_1").Error)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, record.Status)

	// Uncorrelated intents are acknowledged without effect.
	other := &paymentdomain.PaymentIntentSucceeded{
		EventMeta:       paymentdomain.EventMeta{ID: "evt_pi_2", Type: "payment_intent.succeeded"},
		PaymentIntentID: "pi_missing",
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", other, []byte(`{}`)))
}

func TestUnknownEventIsDroppedWithoutFence(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := &paymentdomain.Unknown{
		EventMeta: paymentdomain.EventMeta{ID: "evt_unknown_1", Type: "charge.updated"},
	}
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	var count int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUnresolvedAccountIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := setupReconciler(t)

	ev := checkoutEvent("evt_orphan_1")
	ev.CustomerID = "cus_nobody"
	ev.UserRef = ""
	require.NoError(t, f.svc.ProcessEvent(ctx, "stripe", ev, []byte(`{}`)))

	// Marked processed so the provider stops retrying, but nothing granted.
	var event paymentdomain.EventRecord
	require.NoError(t, f.db.First(&event, "provider_event_id = ?", "evt_orphan_1").Error)
	require.NotNil(t, event.ProcessedAt)
	assert.Equal(t, int64(25), f.balance(t))
}
