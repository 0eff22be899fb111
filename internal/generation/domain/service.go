// Package domain defines the text generation collaborator. The actual model
// call lives behind the Generator interface; the api server only meters it.
package domain

import (
	"context"
	"errors"
)

var (
	ErrEmptyPrompt          = errors.New("empty_prompt")
	ErrGenerationFailed     = errors.New("generation_failed")
	ErrUnknownGeneration    = errors.New("unknown_generation_kind")
	ErrGeneratorUnavailable = errors.New("generator_unavailable")
)

// Kind selects a generation flavor. Each kind carries its own credit cost.
type Kind string

const (
	KindDraft   Kind = "draft"
	KindRewrite Kind = "rewrite"
	KindOutline Kind = "outline"
)

type Request struct {
	Kind   Kind
	Prompt string
}

type Result struct {
	Text string
}

// Generator produces text for a request. Implementations call the upstream
// model; the engine treats them as a black box.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Cost returns the credit price of a generation kind, or false for an
// unknown kind.
func Cost(kind Kind) (int64, bool) {
	switch kind {
	case KindDraft:
		return 2, true
	case KindRewrite:
		return 1, true
	case KindOutline:
		return 1, true
	default:
		return 0, false
	}
}
