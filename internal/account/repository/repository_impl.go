package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/account/domain"
	"github.com/inkfold/inkfold/internal/plan"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error)
	FindByUserRef(ctx context.Context, db *gorm.DB, userRef string) (*domain.Account, error)
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.Account, error)
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.Account, error)
	LinkCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string) error
	UpdateSubscriptionState(ctx context.Context, db *gorm.DB, id snowflake.ID, state SubscriptionState) error
	Anonymize(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

// SubscriptionState is the projection slice of Account owned by the billing
// reconciler.
type SubscriptionState struct {
	PlanTier           plan.Tier
	SubscriptionStatus domain.SubscriptionStatus
	SubscriptionID     *string
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var item domain.Account
	err := db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByUserRef(ctx context.Context, db *gorm.DB, userRef string) (*domain.Account, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, nil
	}
	var item domain.Account
	err := db.WithContext(ctx).First(&item, "user_ref = ?", userRef).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	var item domain.Account
	err := db.WithContext(ctx).First(&item, "provider_customer_id = ?", customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.Account, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, nil
	}
	var item domain.Account
	err := db.WithContext(ctx).First(&item, "provider_subscription_id = ?", subscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) LinkCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET provider_customer_id = ?, updated_at = ?
		 WHERE id = ? AND provider_customer_id IS NULL`,
		customerID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateSubscriptionState(ctx context.Context, db *gorm.DB, id snowflake.ID, state SubscriptionState) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET plan_tier = ?,
		     subscription_status = ?,
		     provider_subscription_id = ?,
		     current_period_start = ?,
		     current_period_end = ?,
		     updated_at = ?
		 WHERE id = ?`,
		string(state.PlanTier),
		string(state.SubscriptionStatus),
		state.SubscriptionID,
		state.PeriodStart,
		state.PeriodEnd,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) Anonymize(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET email = '', anonymized_at = ?, updated_at = ?
		 WHERE id = ? AND anonymized_at IS NULL`,
		at,
		at,
		id,
	).Error
}
