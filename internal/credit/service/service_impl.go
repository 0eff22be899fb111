package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/clock"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	creditrepo "github.com/inkfold/inkfold/internal/credit/repository"
	obsmetrics "github.com/inkfold/inkfold/internal/observability/metrics"
	usagedomain "github.com/inkfold/inkfold/internal/usage/domain"
	usagerepo "github.com/inkfold/inkfold/internal/usage/repository"
	"github.com/inkfold/inkfold/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       creditrepo.Repository
	UsageRepo  usagerepo.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       creditrepo.Repository
	usageRepo  usagerepo.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		usageRepo:  p.UsageRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CheckBalance(ctx context.Context, accountID snowflake.ID, required int64) (bool, error) {
	if required < 0 {
		return false, creditdomain.ErrInvalidAmount
	}
	balance, found, err := s.repo.GetBalance(ctx, s.db, accountID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, creditdomain.ErrAccountNotFound
	}
	return balance >= required, nil
}

func (s *Service) Debit(ctx context.Context, req creditdomain.DebitRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, creditdomain.ErrInvalidAmount
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		endpoint = "unknown"
	}

	var newBalance int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balance, ok, err := s.repo.DebitBalance(ctx, tx, req.AccountID, req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			// The conditional update matched no row: either the account
			// is missing or the balance was short.
			_, found, err := s.repo.GetBalance(ctx, tx, req.AccountID)
			if err != nil {
				return err
			}
			if !found {
				return creditdomain.ErrAccountNotFound
			}
			return creditdomain.ErrInsufficientCredits
		}
		newBalance = balance

		now := s.clock.Now()
		sourceRef := strings.TrimSpace(req.RequestID)
		entry := &creditdomain.LedgerEntry{
			ID:               s.genID.Generate(),
			AccountID:        req.AccountID,
			Kind:             creditdomain.EntryKindSpent,
			Amount:           -req.Amount,
			ResultingBalance: newBalance,
			Source:           creditdomain.SourceAPIUsage,
			Description:      fmt.Sprintf("%s (%d credits)", endpoint, req.Amount),
			CreatedAt:        now,
		}
		if sourceRef != "" {
			entry.SourceRef = &sourceRef
		}
		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			return err
		}

		return s.usageRepo.Insert(ctx, tx, &usagedomain.UsageRecord{
			ID:          s.genID.Generate(),
			AccountID:   req.AccountID,
			Endpoint:    endpoint,
			CreditsUsed: req.Amount,
			RequestID:   sourceRef,
			RecordedAt:  now,
		})
	})
	if err != nil {
		if err == creditdomain.ErrInsufficientCredits {
			s.obsMetrics.RecordDebitDenied(ctx, endpoint)
		}
		return 0, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(creditdomain.SourceAPIUsage))
	return newBalance, nil
}

func (s *Service) Credit(ctx context.Context, req creditdomain.CreditRequest) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.CreditTx(ctx, tx, req)
	})
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req creditdomain.CreditRequest) error {
	return s.applyGrant(ctx, tx, req, creditdomain.EntryKindEarned)
}

func (s *Service) Refund(ctx context.Context, req creditdomain.CreditRequest) error {
	if req.Source == "" {
		req.Source = creditdomain.SourceRefund
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.applyGrant(ctx, tx, req, creditdomain.EntryKindRefunded)
	})
}

func (s *Service) applyGrant(ctx context.Context, tx *gorm.DB, req creditdomain.CreditRequest, kind creditdomain.EntryKind) error {
	if req.Amount <= 0 {
		return creditdomain.ErrInvalidAmount
	}
	if req.Source == "" {
		return creditdomain.ErrInvalidSource
	}

	balance, found, err := s.repo.CreditBalance(ctx, tx, req.AccountID, req.Amount)
	if err != nil {
		return err
	}
	if !found {
		return creditdomain.ErrAccountNotFound
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("%s (+%d credits)", req.Source, req.Amount)
	}
	sourceRef := strings.TrimSpace(req.SourceRef)
	entry := &creditdomain.LedgerEntry{
		ID:               s.genID.Generate(),
		AccountID:        req.AccountID,
		Kind:             kind,
		Amount:           req.Amount,
		ResultingBalance: balance,
		Source:           req.Source,
		Description:      description,
		CreatedAt:        s.clock.Now(),
	}
	if sourceRef != "" {
		entry.SourceRef = &sourceRef
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(req.Source))
	return nil
}

func (s *Service) ResetToPlanAllowance(ctx context.Context, req creditdomain.ResetRequest) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.ResetToPlanAllowanceTx(ctx, tx, req)
	})
}

func (s *Service) ResetToPlanAllowanceTx(ctx context.Context, tx *gorm.DB, req creditdomain.ResetRequest) error {
	if req.Allowance < 0 {
		return creditdomain.ErrInvalidAmount
	}
	if req.Reason == "" {
		return creditdomain.ErrInvalidSource
	}

	prior, found, err := s.repo.GetBalanceForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return err
	}
	if !found {
		return creditdomain.ErrAccountNotFound
	}

	if err := s.repo.SetBalance(ctx, tx, req.AccountID, req.Allowance); err != nil {
		return err
	}

	// The entry amount is the signed delta from the prior balance, so the
	// trail stays additive even though the operation is a reset.
	sourceRef := strings.TrimSpace(req.SourceRef)
	entry := &creditdomain.LedgerEntry{
		ID:               s.genID.Generate(),
		AccountID:        req.AccountID,
		Kind:             creditdomain.EntryKindEarned,
		Amount:           req.Allowance - prior,
		ResultingBalance: req.Allowance,
		Source:           req.Reason,
		Description:      fmt.Sprintf("balance reset to plan allowance (%d credits)", req.Allowance),
		CreatedAt:        s.clock.Now(),
	}
	if sourceRef != "" {
		entry.SourceRef = &sourceRef
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(req.Reason))
	return nil
}

func (s *Service) ListEntries(ctx context.Context, req creditdomain.ListEntriesRequest) (creditdomain.ListEntriesResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	var before *time.Time
	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return creditdomain.ListEntriesResponse{}, err
		}
		if cursor.CreatedAt != "" {
			at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				return creditdomain.ListEntriesResponse{}, err
			}
			before = &at
		}
		if cursor.ID != "" {
			id, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return creditdomain.ListEntriesResponse{}, err
			}
			beforeID = snowflake.ID(id)
		}
	}

	entries, err := s.repo.ListEntries(ctx, s.db, req.AccountID, before, beforeID, limit)
	if err != nil {
		return creditdomain.ListEntriesResponse{}, err
	}

	resp := creditdomain.ListEntriesResponse{Entries: entries}
	if len(entries) > limit {
		resp.Entries = entries[:limit]
		resp.HasMore = true
		last := resp.Entries[limit-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return creditdomain.ListEntriesResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}
