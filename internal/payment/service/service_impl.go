package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/inkfold/inkfold/internal/account/domain"
	accountrepo "github.com/inkfold/inkfold/internal/account/repository"
	"github.com/inkfold/inkfold/internal/clock"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	obsmetrics "github.com/inkfold/inkfold/internal/observability/metrics"
	"github.com/inkfold/inkfold/internal/payment/domain"
	"github.com/inkfold/inkfold/internal/payment/repository"
	"github.com/inkfold/inkfold/internal/plan"
	subscriptiondomain "github.com/inkfold/inkfold/internal/subscription/domain"
	subscriptionrepo "github.com/inkfold/inkfold/internal/subscription/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             repository.Repository
	AccountRepo      accountrepo.Repository
	SubscriptionRepo subscriptionrepo.Repository
	CreditSvc        creditdomain.Service
	Catalog          *plan.CatalogHolder
	ObsMetrics       *obsmetrics.Metrics `optional:"true"`
}

// Service reconciles provider billing events against local accounts, credit
// balances, and the subscription mirror.
type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             repository.Repository
	accountRepo      accountrepo.Repository
	subscriptionRepo subscriptionrepo.Repository
	creditSvc        creditdomain.Service
	catalog          *plan.CatalogHolder
	obsMetrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.ReconcilerService {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.reconciler"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		accountRepo:      p.AccountRepo,
		subscriptionRepo: p.SubscriptionRepo,
		creditSvc:        p.CreditSvc,
		catalog:          p.Catalog,
		obsMetrics:       p.ObsMetrics,
	}
}

// ProcessEvent fences the delivery on (provider, event id), then applies the
// event's effects and the processed mark inside one transaction. A delivery
// that fenced earlier but never finished its effects is picked up again here:
// the fence row exists unprocessed, so the handler reruns and the per-record
// payment fences keep the rerun from double-granting.
func (s *Service) ProcessEvent(ctx context.Context, provider string, event domain.BillingEvent, payload []byte) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	if event == nil || strings.TrimSpace(event.EventID()) == "" {
		return domain.ErrInvalidEvent
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	if _, ok := event.(*domain.Unknown); ok {
		s.log.Debug("ignoring unhandled event type",
			zap.String("provider", provider),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	now := s.clock.Now()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.EventID(),
		EventType:       event.EventType(),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.EventID())
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return domain.ErrEventAlreadyProcessed
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.apply(ctx, tx, provider, event); err != nil {
			return err
		}
		return s.repo.MarkProcessed(ctx, tx, stored.ID, s.clock.Now())
	})
	if err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordBillingEvent(ctx, provider, event.EventType())
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, provider string, event domain.BillingEvent) error {
	switch ev := event.(type) {
	case *domain.CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, tx, provider, ev)
	case *domain.SubscriptionChanged:
		return s.applySubscriptionChanged(ctx, tx, ev)
	case *domain.SubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, tx, ev)
	case *domain.InvoicePaid:
		return s.applyInvoicePaid(ctx, tx, provider, ev)
	case *domain.InvoicePaymentFailed:
		return s.applyInvoicePaymentFailed(ctx, tx, provider, ev)
	case *domain.PaymentIntentSucceeded:
		return s.applyPaymentIntentStatus(ctx, tx, ev.PaymentIntentID, domain.PaymentStatusSucceeded)
	case *domain.PaymentIntentFailed:
		return s.applyPaymentIntentStatus(ctx, tx, ev.PaymentIntentID, domain.PaymentStatusFailed)
	default:
		return domain.ErrInvalidEvent
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, tx *gorm.DB, provider string, ev *domain.CheckoutCompleted) error {
	account, err := s.resolveAccount(ctx, tx, ev.CustomerID, ev.UserRef)
	if err != nil {
		return err
	}
	if account == nil {
		s.log.Warn("dropping checkout for unresolved account",
			zap.String("event_id", ev.EventID()),
			zap.String("customer_id", ev.CustomerID),
			zap.String("user_ref", ev.UserRef),
		)
		return nil
	}

	now := s.clock.Now()
	rec := domain.PaymentRecord{
		ID:                s.genID.Generate(),
		AccountID:         account.ID,
		Provider:          provider,
		CheckoutSessionID: nonEmpty(ev.CheckoutSessionID),
		PaymentIntentID:   nonEmpty(ev.PaymentIntentID),
		Amount:            ev.AmountTotal,
		Currency:          strings.ToUpper(ev.Currency),
		Status:            domain.PaymentStatusSucceeded,
		Metadata: datatypes.JSONMap{
			"mode":     ev.Mode,
			"price_id": ev.PriceID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if ev.Mode == "subscription" {
		// Plan tier and allowance arrive via the subscription and invoice
		// events that follow the checkout.
		rec.Type = domain.PaymentTypeSubscription
		_, err := s.repo.InsertBySession(ctx, tx, &rec)
		return err
	}

	pkg := s.catalog.Current().PackageForPriceID(ev.PriceID)
	if pkg == nil && ev.PackageCode != "" {
		pkg = s.catalog.Current().PackageByCode(ev.PackageCode)
	}
	rec.Type = domain.PaymentTypeCredits
	if pkg == nil {
		s.log.Warn("checkout references unknown credit package",
			zap.String("event_id", ev.EventID()),
			zap.String("price_id", ev.PriceID),
			zap.String("package_code", ev.PackageCode),
		)
	} else {
		rec.CreditsGranted = pkg.Credits
		rec.Metadata["package_code"] = pkg.Code
	}

	inserted, err := s.repo.InsertBySession(ctx, tx, &rec)
	if err != nil {
		return err
	}
	if !inserted {
		prior, err := s.repo.FindBySessionID(ctx, tx, ev.CheckoutSessionID)
		if err != nil {
			return err
		}
		if prior != nil {
			s.log.Debug("checkout session already recorded",
				zap.String("event_id", ev.EventID()),
				zap.String("session_id", ev.CheckoutSessionID),
				zap.String("payment_record_id", prior.ID.String()),
			)
		}
		return nil
	}
	if pkg == nil {
		return nil
	}

	return s.creditSvc.CreditTx(ctx, tx, creditdomain.CreditRequest{
		AccountID:   account.ID,
		Amount:      pkg.Credits,
		Source:      creditdomain.SourcePurchase,
		SourceRef:   ev.CheckoutSessionID,
		Description: "Purchased " + pkg.Code,
	})
}

func (s *Service) applySubscriptionChanged(ctx context.Context, tx *gorm.DB, ev *domain.SubscriptionChanged) error {
	account, err := s.resolveAccount(ctx, tx, ev.CustomerID, "")
	if err != nil {
		return err
	}
	if account == nil {
		account, err = s.accountRepo.FindBySubscriptionID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
	}
	if account == nil {
		s.log.Warn("dropping subscription change for unresolved account",
			zap.String("event_id", ev.EventID()),
			zap.String("subscription_id", ev.SubscriptionID),
			zap.String("customer_id", ev.CustomerID),
		)
		return nil
	}

	status := mapSubscriptionStatus(ev.Status)
	tier := s.catalog.Current().TierForPriceID(ev.PriceID)
	if status == accountdomain.SubscriptionStatusCanceled ||
		status == accountdomain.SubscriptionStatusIncompleteExpired {
		tier = plan.TierFree
	}

	if err := s.accountRepo.UpdateSubscriptionState(ctx, tx, account.ID, accountrepo.SubscriptionState{
		PlanTier:           tier,
		SubscriptionStatus: status,
		SubscriptionID:     nonEmpty(ev.SubscriptionID),
		PeriodStart:        ev.PeriodStart,
		PeriodEnd:          ev.PeriodEnd,
	}); err != nil {
		return err
	}

	return s.subscriptionRepo.Upsert(ctx, tx, &subscriptiondomain.Mirror{
		ID:                     s.genID.Generate(),
		AccountID:              account.ID,
		ProviderSubscriptionID: ev.SubscriptionID,
		ProviderCustomerID:     ev.CustomerID,
		ProviderPriceID:        ev.PriceID,
		PlanTier:               tier,
		Status:                 status,
		CurrentPeriodStart:     ev.PeriodStart,
		CurrentPeriodEnd:       ev.PeriodEnd,
	})
}

// applySubscriptionDeleted drops the account to the free tier while leaving
// the credit balance alone: already-granted credits survive cancellation.
func (s *Service) applySubscriptionDeleted(ctx context.Context, tx *gorm.DB, ev *domain.SubscriptionDeleted) error {
	account, err := s.accountRepo.FindBySubscriptionID(ctx, tx, ev.SubscriptionID)
	if err != nil {
		return err
	}
	if account == nil {
		account, err = s.resolveAccount(ctx, tx, ev.CustomerID, "")
		if err != nil {
			return err
		}
	}
	if account == nil {
		s.log.Warn("dropping subscription deletion for unresolved account",
			zap.String("event_id", ev.EventID()),
			zap.String("subscription_id", ev.SubscriptionID),
		)
		return nil
	}

	if err := s.accountRepo.UpdateSubscriptionState(ctx, tx, account.ID, accountrepo.SubscriptionState{
		PlanTier:           plan.TierFree,
		SubscriptionStatus: accountdomain.SubscriptionStatusCanceled,
	}); err != nil {
		return err
	}

	return s.subscriptionRepo.MarkStatus(ctx, tx, ev.SubscriptionID, accountdomain.SubscriptionStatusCanceled)
}

func (s *Service) applyInvoicePaid(ctx context.Context, tx *gorm.DB, provider string, ev *domain.InvoicePaid) error {
	account, err := s.resolveAccount(ctx, tx, ev.CustomerID, "")
	if err != nil {
		return err
	}
	if account == nil {
		account, err = s.accountRepo.FindBySubscriptionID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
	}
	if account == nil {
		s.log.Warn("dropping paid invoice for unresolved account",
			zap.String("event_id", ev.EventID()),
			zap.String("invoice_id", ev.InvoiceID),
			zap.String("customer_id", ev.CustomerID),
		)
		return nil
	}

	// The mirror is authoritative for which plan the invoice paid for; the
	// account projection may lag when the invoice event arrives first.
	tier := account.PlanTier
	if ev.SubscriptionID != "" {
		mirror, err := s.subscriptionRepo.FindByProviderSubscriptionID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if mirror != nil {
			tier = mirror.PlanTier
		}
	}

	allowance := s.catalog.Current().Allowance(tier)
	now := s.clock.Now()
	inserted, err := s.repo.InsertByInvoice(ctx, tx, &domain.PaymentRecord{
		ID:             s.genID.Generate(),
		AccountID:      account.ID,
		Provider:       provider,
		InvoiceID:      nonEmpty(ev.InvoiceID),
		Amount:         ev.AmountPaid,
		Currency:       strings.ToUpper(ev.Currency),
		Status:         domain.PaymentStatusSucceeded,
		Type:           domain.PaymentTypeSubscription,
		CreditsGranted: allowance,
		Metadata: datatypes.JSONMap{
			"subscription_id": ev.SubscriptionID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	return s.creditSvc.ResetToPlanAllowanceTx(ctx, tx, creditdomain.ResetRequest{
		AccountID: account.ID,
		Allowance: allowance,
		Reason:    creditdomain.SourceSubscriptionRenewal,
		SourceRef: ev.InvoiceID,
	})
}

// applyInvoicePaymentFailed flags the account past_due. Credits are not
// clawed back; the account just stops renewing until the provider retries
// successfully or cancels.
func (s *Service) applyInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, provider string, ev *domain.InvoicePaymentFailed) error {
	account, err := s.resolveAccount(ctx, tx, ev.CustomerID, "")
	if err != nil {
		return err
	}
	if account == nil {
		account, err = s.accountRepo.FindBySubscriptionID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
	}
	if account == nil {
		s.log.Warn("dropping failed invoice for unresolved account",
			zap.String("event_id", ev.EventID()),
			zap.String("invoice_id", ev.InvoiceID),
		)
		return nil
	}

	now := s.clock.Now()
	if _, err := s.repo.InsertByInvoice(ctx, tx, &domain.PaymentRecord{
		ID:        s.genID.Generate(),
		AccountID: account.ID,
		Provider:  provider,
		InvoiceID: nonEmpty(ev.InvoiceID),
		Amount:    ev.AmountDue,
		Currency:  strings.ToUpper(ev.Currency),
		Status:    domain.PaymentStatusFailed,
		Type:      domain.PaymentTypeSubscription,
		Metadata: datatypes.JSONMap{
			"subscription_id": ev.SubscriptionID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	if err := s.accountRepo.UpdateSubscriptionState(ctx, tx, account.ID, accountrepo.SubscriptionState{
		PlanTier:           account.PlanTier,
		SubscriptionStatus: accountdomain.SubscriptionStatusPastDue,
		SubscriptionID:     account.ProviderSubscriptionID,
		PeriodStart:        account.CurrentPeriodStart,
		PeriodEnd:          account.CurrentPeriodEnd,
	}); err != nil {
		return err
	}

	if ev.SubscriptionID != "" {
		return s.subscriptionRepo.MarkStatus(ctx, tx, ev.SubscriptionID, accountdomain.SubscriptionStatusPastDue)
	}
	return nil
}

func (s *Service) applyPaymentIntentStatus(ctx context.Context, tx *gorm.DB, paymentIntentID string, status domain.PaymentStatus) error {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil
	}
	updated, err := s.repo.UpdateStatusByIntentID(ctx, tx, paymentIntentID, status)
	if err != nil {
		return err
	}
	if !updated {
		s.log.Debug("payment intent not correlated to a record",
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("status", string(status)),
		)
	}
	return nil
}

// resolveAccount finds the account a provider event belongs to, preferring
// the stored customer id and falling back to the checkout's client reference.
// A fallback hit links the customer id for future lookups.
func (s *Service) resolveAccount(ctx context.Context, tx *gorm.DB, customerID, userRef string) (*accountdomain.Account, error) {
	account, err := s.accountRepo.FindByCustomerID(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	if userRef == "" {
		return nil, nil
	}
	account, err = s.accountRepo.FindByUserRef(ctx, tx, userRef)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	if customerID != "" && account.ProviderCustomerID == nil {
		if err := s.accountRepo.LinkCustomerID(ctx, tx, account.ID, customerID); err != nil {
			return nil, err
		}
		account.ProviderCustomerID = &customerID
	}
	return account, nil
}

func mapSubscriptionStatus(raw string) accountdomain.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return accountdomain.SubscriptionStatusNone
	case "active":
		return accountdomain.SubscriptionStatusActive
	case "trialing":
		return accountdomain.SubscriptionStatusTrialing
	case "past_due":
		return accountdomain.SubscriptionStatusPastDue
	case "canceled":
		return accountdomain.SubscriptionStatusCanceled
	case "incomplete":
		return accountdomain.SubscriptionStatusIncomplete
	case "incomplete_expired":
		return accountdomain.SubscriptionStatusIncompleteExpired
	case "unpaid":
		return accountdomain.SubscriptionStatusUnpaid
	default:
		// Preserve statuses this service does not know (e.g. paused)
		// instead of promoting them to active.
		return accountdomain.SubscriptionStatus(normalized)
	}
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
