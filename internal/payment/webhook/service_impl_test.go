package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/inkfold/inkfold/internal/config"
	"github.com/inkfold/inkfold/internal/payment/adapters"
	"github.com/inkfold/inkfold/internal/payment/adapters/stripe"
	"github.com/inkfold/inkfold/internal/payment/domain"
	"github.com/inkfold/inkfold/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

type recordingReconciler struct {
	events []domain.BillingEvent
	err    error
}

func (r *recordingReconciler) ProcessEvent(ctx context.Context, provider string, event domain.BillingEvent, payload []byte) error {
	r.events = append(r.events, event)
	return r.err
}

func newIngest(t *testing.T, reconciler domain.ReconcilerService) domain.WebhookService {
	t.Helper()
	return webhook.NewService(webhook.Params{
		Log:           zap.NewNop(),
		ReconcilerSvc: reconciler,
		Adapters:      adapters.NewRegistry(stripe.NewFactory()),
		Cfg:           config.Config{StripeWebhookSecret: testSecret},
	})
}

func signedHeaders(t *testing.T, payload []byte) http.Header {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, err := fmt.Fprintf(mac, "%d.%s", ts, payload)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestIngestVerifiesAndDispatches(t *testing.T) {
	reconciler := &recordingReconciler{}
	svc := newIngest(t, reconciler)
	payload := []byte(`{
		"id": "evt_1",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "customer": "cus_1", "amount_paid": 2900}}
	}`)

	require.NoError(t, svc.Ingest(context.Background(), "stripe", payload, signedHeaders(t, payload)))
	require.Len(t, reconciler.events, 1)
	invoice, ok := reconciler.events[0].(*domain.InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "in_1", invoice.InvoiceID)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	reconciler := &recordingReconciler{}
	svc := newIngest(t, reconciler)
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=123,v1=deadbeef")
	err := svc.Ingest(context.Background(), "stripe", payload, headers)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Empty(t, reconciler.events)
}

func TestIngestUnknownProvider(t *testing.T) {
	svc := newIngest(t, &recordingReconciler{})

	err := svc.Ingest(context.Background(), "paypal", []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)

	err = svc.Ingest(context.Background(), "  ", []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, domain.ErrInvalidProvider)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	svc := newIngest(t, &recordingReconciler{})

	err := svc.Ingest(context.Background(), "stripe", []byte(`not json`), http.Header{})
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestIngestSwallowsReplayedEvents(t *testing.T) {
	reconciler := &recordingReconciler{err: domain.ErrEventAlreadyProcessed}
	svc := newIngest(t, reconciler)
	payload := []byte(`{
		"id": "evt_1",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1"}}
	}`)

	require.NoError(t, svc.Ingest(context.Background(), "stripe", payload, signedHeaders(t, payload)))
}
