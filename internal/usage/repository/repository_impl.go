package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/usage/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]domain.UsageRecord, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []domain.UsageRecord
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
