package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	usagerepo "github.com/inkfold/inkfold/internal/usage/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxListLimit = 250

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo usagerepo.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo usagerepo.Repository
}

func NewService(p Params) usagedomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("usage.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListRecent(ctx context.Context, accountID snowflake.ID, limit int) ([]usagedomain.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}
