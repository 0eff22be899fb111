package stripe_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/inkfold/inkfold/internal/payment/adapters/stripe"
	"github.com/inkfold/inkfold/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func newAdapter(t *testing.T) domain.Adapter {
	t.Helper()
	adapter, err := stripe.NewFactory().NewAdapter(domain.AdapterConfig{
		Provider:      "stripe",
		WebhookSecret: testSecret,
	})
	require.NoError(t, err)
	return adapter
}

func buildSignatureHeader(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, err := fmt.Fprintf(mac, "%d.%s", ts, payload)
	require.NoError(t, err)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	_, err := stripe.NewFactory().NewAdapter(domain.AdapterConfig{Provider: "stripe"})
	require.ErrorIs(t, err, domain.ErrWebhookNotConfigured)
}

func TestVerifySignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildSignatureHeader(t, payload, testSecret))
	require.NoError(t, adapter.VerifySignature(payload, headers))

	headers.Set("Stripe-Signature", buildSignatureHeader(t, payload, "whsec_wrong"))
	require.ErrorIs(t, adapter.VerifySignature(payload, headers), domain.ErrInvalidSignature)

	headers.Set("Stripe-Signature", "t=123")
	require.ErrorIs(t, adapter.VerifySignature(payload, headers), domain.ErrInvalidSignature)

	headers.Del("Stripe-Signature")
	require.ErrorIs(t, adapter.VerifySignature(payload, headers), domain.ErrInvalidSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	ts := time.Now().Add(-time.Hour).Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))

	require.ErrorIs(t, adapter.VerifySignature(payload, headers), domain.ErrInvalidSignature)
}

func TestVerifySignatureAcceptsMultipleV1(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	valid := buildSignatureHeader(t, payload, testSecret)
	headers := http.Header{}
	headers.Set("Stripe-Signature", valid+",v1=deadbeef")
	require.NoError(t, adapter.VerifySignature(payload, headers))
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1748736000,
		"data": {"object": {
			"id": "cs_1",
			"mode": "payment",
			"customer": "cus_1",
			"client_reference_id": "user_9",
			"payment_intent": "pi_1",
			"amount_total": 1299,
			"currency": "usd",
			"metadata": {"package_code": "credits_50", "price_id": "price_1"}
		}}
	}`)

	event, err := adapter.ParseEvent(payload)
	require.NoError(t, err)
	checkout, ok := event.(*domain.CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", checkout.EventID())
	assert.Equal(t, "checkout.session.completed", checkout.EventType())
	assert.Equal(t, "cs_1", checkout.CheckoutSessionID)
	assert.Equal(t, "cus_1", checkout.CustomerID)
	assert.Equal(t, "user_9", checkout.UserRef)
	assert.Equal(t, "pi_1", checkout.PaymentIntentID)
	assert.Equal(t, "payment", checkout.Mode)
	assert.Equal(t, "credits_50", checkout.PackageCode)
	assert.Equal(t, "price_1", checkout.PriceID)
	assert.Equal(t, int64(1299), checkout.AmountTotal)
	assert.Equal(t, "USD", checkout.Currency)
}

func TestParseSubscriptionUpdated(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_start": 1748736000,
			"current_period_end": 1751328000,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}}
	}`)

	event, err := adapter.ParseEvent(payload)
	require.NoError(t, err)
	sub, ok := event.(*domain.SubscriptionChanged)
	require.True(t, ok)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "price_pro", sub.PriceID)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.PeriodStart)
	assert.Equal(t, int64(1748736000), sub.PeriodStart.Unix())
	require.NotNil(t, sub.PeriodEnd)
}

func TestParseSubscriptionDeleted(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`)

	event, err := adapter.ParseEvent(payload)
	require.NoError(t, err)
	deleted, ok := event.(*domain.SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "sub_1", deleted.SubscriptionID)
	assert.Equal(t, "cus_1", deleted.CustomerID)
}

func TestParseInvoiceEvents(t *testing.T) {
	adapter := newAdapter(t)

	paid := []byte(`{
		"id": "evt_4",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_1", "customer": "cus_1", "subscription": "sub_1",
			"amount_paid": 2900, "currency": "usd"
		}}
	}`)
	event, err := adapter.ParseEvent(paid)
	require.NoError(t, err)
	invoice, ok := event.(*domain.InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "in_1", invoice.InvoiceID)
	assert.Equal(t, int64(2900), invoice.AmountPaid)

	// invoice.payment_succeeded is an alias for the same variant.
	alias := []byte(`{
		"id": "evt_5",
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_1", "amount_paid": 2900}}
	}`)
	event, err = adapter.ParseEvent(alias)
	require.NoError(t, err)
	_, ok = event.(*domain.InvoicePaid)
	require.True(t, ok)

	failed := []byte(`{
		"id": "evt_6",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_2", "customer": "cus_1", "amount_due": 2900}}
	}`)
	event, err = adapter.ParseEvent(failed)
	require.NoError(t, err)
	failure, ok := event.(*domain.InvoicePaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "in_2", failure.InvoiceID)
	assert.Equal(t, int64(2900), failure.AmountDue)
}

func TestParsePaymentIntentEvents(t *testing.T) {
	adapter := newAdapter(t)

	succeeded := []byte(`{
		"id": "evt_7",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1", "amount": 1299, "amount_received": 1299, "currency": "usd"}}
	}`)
	event, err := adapter.ParseEvent(succeeded)
	require.NoError(t, err)
	intent, ok := event.(*domain.PaymentIntentSucceeded)
	require.True(t, ok)
	assert.Equal(t, "pi_1", intent.PaymentIntentID)
	assert.Equal(t, int64(1299), intent.Amount)

	failed := []byte(`{
		"id": "evt_8",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_2", "last_payment_error": {"message": "card_declined"}}}
	}`)
	event, err = adapter.ParseEvent(failed)
	require.NoError(t, err)
	intentFailed, ok := event.(*domain.PaymentIntentFailed)
	require.True(t, ok)
	assert.Equal(t, "card_declined", intentFailed.FailureMessage)
}

func TestParseUnhandledType(t *testing.T) {
	adapter := newAdapter(t)

	event, err := adapter.ParseEvent([]byte(`{"id": "evt_9", "type": "charge.updated", "data": {"object": {}}}`))
	require.NoError(t, err)
	unknown, ok := event.(*domain.Unknown)
	require.True(t, ok)
	assert.Equal(t, "evt_9", unknown.EventID())
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	adapter := newAdapter(t)

	_, err := adapter.ParseEvent([]byte(`not json`))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = adapter.ParseEvent([]byte(`{"type": "invoice.paid"}`))
	require.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = adapter.ParseEvent([]byte(`{"id": "evt_10", "type": "invoice.paid", "data": {"object": {}}}`))
	require.ErrorIs(t, err, domain.ErrInvalidEvent)
}
