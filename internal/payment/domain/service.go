package domain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrWebhookNotConfigured  = errors.New("webhook_not_configured")
)

// AdapterConfig carries per-provider webhook credentials.
type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

// Adapter hides a provider's wire format behind signature verification and
// translation into the BillingEvent union.
type Adapter interface {
	VerifySignature(payload []byte, headers http.Header) error
	ParseEvent(payload []byte) (BillingEvent, error)
}

// AdapterFactory builds adapters for one named provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// WebhookService is the ingest edge: verify, parse, then hand off to the
// reconciler.
type WebhookService interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// ReconcilerService applies a normalized billing event to local state exactly
// once per provider event id.
type ReconcilerService interface {
	ProcessEvent(ctx context.Context, provider string, event BillingEvent, payload []byte) error
}
