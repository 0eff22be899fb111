// Package stripe normalizes Stripe webhook deliveries into billing events.
package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inkfold/inkfold/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrWebhookNotConfigured
	}
	return &Adapter{webhookSecret: secret}, nil
}

// signatureTolerance bounds how old a signed timestamp may be before the
// delivery is treated as a replay.
const signatureTolerance = 5 * time.Minute

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if age := time.Since(time.Unix(ts, 0)); age > signatureTolerance || age < -signatureTolerance {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) ParseEvent(payload []byte) (domain.BillingEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	meta := domain.EventMeta{
		ID:         event.ID,
		Type:       strings.TrimSpace(event.Type),
		OccurredAt: occurredAt(event.Created),
	}

	switch meta.Type {
	case "checkout.session.completed":
		return parseCheckoutSession(meta, event.Data.Object)
	case "customer.subscription.created", "customer.subscription.updated":
		return parseSubscription(meta, event.Data.Object)
	case "customer.subscription.deleted":
		return parseSubscriptionDeleted(meta, event.Data.Object)
	case "invoice.paid", "invoice.payment_succeeded":
		return parseInvoicePaid(meta, event.Data.Object)
	case "invoice.payment_failed":
		return parseInvoiceFailed(meta, event.Data.Object)
	case "payment_intent.succeeded":
		return parseIntentSucceeded(meta, event.Data.Object)
	case "payment_intent.payment_failed":
		return parseIntentFailed(meta, event.Data.Object)
	default:
		return &domain.Unknown{EventMeta: meta}, nil
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     string            `json:"payment_intent"`
	Subscription      string            `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
}

type stripePaymentIntent struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	AmountReceived   int64  `json:"amount_received"`
	Currency         string `json:"currency"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func parseCheckoutSession(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.CheckoutCompleted{
		EventMeta:         meta,
		CheckoutSessionID: session.ID,
		CustomerID:        strings.TrimSpace(session.Customer),
		PaymentIntentID:   strings.TrimSpace(session.PaymentIntent),
		SubscriptionID:    strings.TrimSpace(session.Subscription),
		UserRef:           strings.TrimSpace(session.ClientReferenceID),
		Mode:              strings.TrimSpace(session.Mode),
		PriceID:           strings.TrimSpace(session.Metadata["price_id"]),
		PackageCode:       strings.TrimSpace(session.Metadata["package_code"]),
		AmountTotal:       session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
	}, nil
}

func parseSubscription(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var priceID string
	if len(sub.Items.Data) > 0 {
		priceID = strings.TrimSpace(sub.Items.Data[0].Price.ID)
	}

	return &domain.SubscriptionChanged{
		EventMeta:         meta,
		SubscriptionID:    sub.ID,
		CustomerID:        strings.TrimSpace(sub.Customer),
		Status:            strings.TrimSpace(sub.Status),
		PriceID:           priceID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodStart:       unixTime(sub.CurrentPeriodStart),
		PeriodEnd:         unixTime(sub.CurrentPeriodEnd),
	}, nil
}

func parseSubscriptionDeleted(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.SubscriptionDeleted{
		EventMeta:      meta,
		SubscriptionID: sub.ID,
		CustomerID:     strings.TrimSpace(sub.Customer),
	}, nil
}

func parseInvoicePaid(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.InvoicePaid{
		EventMeta:      meta,
		InvoiceID:      invoice.ID,
		CustomerID:     strings.TrimSpace(invoice.Customer),
		SubscriptionID: strings.TrimSpace(invoice.Subscription),
		AmountPaid:     invoice.AmountPaid,
		Currency:       strings.ToUpper(strings.TrimSpace(invoice.Currency)),
	}, nil
}

func parseInvoiceFailed(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.InvoicePaymentFailed{
		EventMeta:      meta,
		InvoiceID:      invoice.ID,
		CustomerID:     strings.TrimSpace(invoice.Customer),
		SubscriptionID: strings.TrimSpace(invoice.Subscription),
		AmountDue:      invoice.AmountDue,
		Currency:       strings.ToUpper(strings.TrimSpace(invoice.Currency)),
	}, nil
}

func parseIntentSucceeded(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	return &domain.PaymentIntentSucceeded{
		EventMeta:       meta,
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
	}, nil
}

func parseIntentFailed(meta domain.EventMeta, raw json.RawMessage) (domain.BillingEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.PaymentIntentFailed{
		EventMeta:       meta,
		PaymentIntentID: intent.ID,
		FailureMessage:  strings.TrimSpace(intent.LastPaymentError.Message),
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func occurredAt(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

func unixTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}
