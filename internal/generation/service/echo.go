package service

import (
	"context"
	"strings"

	"github.com/inkfold/inkfold/internal/generation/domain"
)

// EchoGenerator is the development stand-in for the model backend. It shapes
// the prompt into a deterministic response so the metering path can run
// end to end without an upstream call.
type EchoGenerator struct{}

func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{}
}

func (g *EchoGenerator) Generate(_ context.Context, req domain.Request) (*domain.Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	var text string
	switch req.Kind {
	case domain.KindOutline:
		text = "1. " + prompt
	case domain.KindRewrite:
		text = prompt
	default:
		text = prompt + "."
	}

	return &domain.Result{Text: text}, nil
}
