package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/payment/domain"
	"gorm.io/gorm"
)

// Repository persists provider event fences and payment receipts. All writes
// take the caller's handle so the reconciler controls transaction scope.
type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	InsertBySession(ctx context.Context, db *gorm.DB, rec *domain.PaymentRecord) (bool, error)
	InsertByInvoice(ctx context.Context, db *gorm.DB, rec *domain.PaymentRecord) (bool, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaymentRecord, error)
	UpdateStatusByIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string, status domain.PaymentStatus) (bool, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

// InsertBySession fences on checkout_session_id so a redelivered checkout
// event cannot create a second receipt.
func (r *repo) InsertBySession(ctx context.Context, db *gorm.DB, rec *domain.PaymentRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (
			id, account_id, provider, checkout_session_id, payment_intent_id, invoice_id,
			amount, currency, status, type, credits_granted, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checkout_session_id) DO NOTHING`,
		rec.ID,
		rec.AccountID,
		rec.Provider,
		rec.CheckoutSessionID,
		rec.PaymentIntentID,
		rec.InvoiceID,
		rec.Amount,
		rec.Currency,
		rec.Status,
		rec.Type,
		rec.CreditsGranted,
		rec.Metadata,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// InsertByInvoice fences on invoice_id for recurring charges.
func (r *repo) InsertByInvoice(ctx context.Context, db *gorm.DB, rec *domain.PaymentRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (
			id, account_id, provider, checkout_session_id, payment_intent_id, invoice_id,
			amount, currency, status, type, credits_granted, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id) DO NOTHING`,
		rec.ID,
		rec.AccountID,
		rec.Provider,
		rec.CheckoutSessionID,
		rec.PaymentIntentID,
		rec.InvoiceID,
		rec.Amount,
		rec.Currency,
		rec.Status,
		rec.Type,
		rec.CreditsGranted,
		rec.Metadata,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, provider, checkout_session_id, payment_intent_id, invoice_id,
			amount, currency, status, type, credits_granted, metadata, created_at, updated_at
		 FROM payment_records
		 WHERE checkout_session_id = ?
		 LIMIT 1`,
		sessionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatusByIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string, status domain.PaymentStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, updated_at = ?
		 WHERE payment_intent_id = ?`,
		status,
		time.Now().UTC(),
		paymentIntentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
