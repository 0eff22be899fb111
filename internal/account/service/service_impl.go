package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	accountrepo "github.com/inkfold/inkfold/internal/account/repository"
	"github.com/inkfold/inkfold/internal/clock"
	"github.com/inkfold/inkfold/internal/config"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	"github.com/inkfold/inkfold/internal/plan"
	"github.com/inkfold/inkfold/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      accountrepo.Repository
	CreditSvc creditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         accountrepo.Repository
	creditSvc    creditdomain.Service
	signupCredit int64
}

func NewService(p Params) accountdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("account.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		creditSvc:    p.CreditSvc,
		signupCredit: p.Cfg.SignupGrantCredits,
	}
}

func (s *Service) Provision(ctx context.Context, userRef, email string) (*accountdomain.Account, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, accountdomain.ErrInvalidUserRef
	}

	existing, err := s.repo.FindByUserRef(ctx, s.db, userRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	account := &accountdomain.Account{
		ID:                 s.genID.Generate(),
		UserRef:            userRef,
		Email:              strings.TrimSpace(email),
		PlanTier:           plan.TierFree,
		SubscriptionStatus: accountdomain.SubscriptionStatusNone,
		CreatedAt:          s.clock.Now(),
		UpdatedAt:          s.clock.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, account); err != nil {
			return err
		}
		if s.signupCredit <= 0 {
			return nil
		}
		return s.creditSvc.CreditTx(ctx, tx, creditdomain.CreditRequest{
			AccountID:   account.ID,
			Amount:      s.signupCredit,
			Source:      creditdomain.SourceSignup,
			SourceRef:   userRef,
			Description: "signup grant",
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost a provisioning race; the winner's row is the account.
			winner, findErr := s.repo.FindByUserRef(ctx, s.db, userRef)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return winner, nil
			}
			return nil, accountdomain.ErrDuplicateUserRef
		}
		return nil, err
	}

	account.CreditBalance = s.signupCredit
	s.log.Info("account provisioned",
		zap.String("account_id", account.ID.String()),
		zap.Int64("signup_credits", s.signupCredit),
	)
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*accountdomain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) GetByUserRef(ctx context.Context, userRef string) (*accountdomain.Account, error) {
	account, err := s.repo.FindByUserRef(ctx, s.db, userRef)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) GetProfile(ctx context.Context, id snowflake.ID) (*accountdomain.Profile, error) {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &accountdomain.Profile{
		AccountID:          account.ID,
		CreditBalance:      account.CreditBalance,
		PlanTier:           account.PlanTier,
		SubscriptionStatus: account.SubscriptionStatus,
		CurrentPeriodStart: account.CurrentPeriodStart,
		CurrentPeriodEnd:   account.CurrentPeriodEnd,
	}, nil
}

func (s *Service) Anonymize(ctx context.Context, id snowflake.ID) error {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if account.AnonymizedAt != nil {
		return accountdomain.ErrAccountAnonymized
	}
	return s.repo.Anonymize(ctx, s.db, id, s.clock.Now())
}
