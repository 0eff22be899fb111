package repository

import (
	"context"
	"time"

	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	"github.com/inkfold/inkfold/internal/subscription/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the mirror row or, when the provider subscription id
	// is already present, updates it in place.
	Upsert(ctx context.Context, db *gorm.DB, mirror *domain.Mirror) error
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.Mirror, error)
	MarkStatus(ctx context.Context, db *gorm.DB, providerSubscriptionID string, status accountdomain.SubscriptionStatus) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, mirror *domain.Mirror) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO provider_subscriptions (
			id, account_id, provider_subscription_id, provider_customer_id,
			provider_price_id, plan_tier, status,
			current_period_start, current_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_subscription_id) DO UPDATE SET
			provider_customer_id = excluded.provider_customer_id,
			provider_price_id = excluded.provider_price_id,
			plan_tier = excluded.plan_tier,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		mirror.ID,
		mirror.AccountID,
		mirror.ProviderSubscriptionID,
		mirror.ProviderCustomerID,
		mirror.ProviderPriceID,
		string(mirror.PlanTier),
		string(mirror.Status),
		mirror.CurrentPeriodStart,
		mirror.CurrentPeriodEnd,
		now,
		now,
	).Error
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.Mirror, error) {
	var rows []domain.Mirror
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM provider_subscriptions
		 WHERE provider_subscription_id = ?
		 LIMIT 1`,
		providerSubscriptionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) MarkStatus(ctx context.Context, db *gorm.DB, providerSubscriptionID string, status accountdomain.SubscriptionStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE provider_subscriptions
		 SET status = ?, updated_at = ?
		 WHERE provider_subscription_id = ?`,
		string(status),
		time.Now().UTC(),
		providerSubscriptionID,
	).Error
}
