// Package webhook is the ingest edge for provider billing webhooks: it
// verifies the delivery, normalizes it, and hands it to the reconciler.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkfold/inkfold/internal/config"
	"github.com/inkfold/inkfold/internal/payment/adapters"
	"github.com/inkfold/inkfold/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	ReconcilerSvc domain.ReconcilerService
	Adapters      *adapters.Registry
	Cfg           config.Config
}

type Service struct {
	log           *zap.Logger
	reconcilerSvc domain.ReconcilerService
	adapters      *adapters.Registry
	secrets       map[string]string
}

func NewService(p Params) domain.WebhookService {
	return &Service{
		log:           p.Log.Named("payment.webhook"),
		reconcilerSvc: p.ReconcilerSvc,
		adapters:      p.Adapters,
		secrets: map[string]string{
			"stripe": strings.TrimSpace(p.Cfg.StripeWebhookSecret),
		},
	}
}

// Ingest verifies and parses a raw delivery, then applies it. A replay of an
// already-processed event returns nil so the provider sees success and stops
// redelivering.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return domain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, domain.AdapterConfig{
		Provider:      provider,
		WebhookSecret: s.secrets[provider],
	})
	if err != nil {
		return err
	}

	if err := adapter.VerifySignature(payload, headers); err != nil {
		s.log.Warn("rejected webhook with bad signature", zap.String("provider", provider))
		return err
	}

	event, err := adapter.ParseEvent(payload)
	if err != nil {
		return err
	}

	if err := s.reconcilerSvc.ProcessEvent(ctx, provider, event, payload); err != nil {
		if errors.Is(err, domain.ErrEventAlreadyProcessed) {
			s.log.Debug("skipping replayed event",
				zap.String("provider", provider),
				zap.String("event_id", event.EventID()),
			)
			return nil
		}
		return err
	}
	return nil
}
