package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	generationdomain "github.com/inkfold/inkfold/internal/generation/domain"
	"github.com/inkfold/inkfold/internal/observability/reqcontext"
	"go.uber.org/zap"
)

type createGenerationRequest struct {
	Kind   string `json:"kind"`
	Prompt string `json:"prompt"`
}

// CreateGeneration is the costed route. The balance check up front is an
// admission filter only; the debit after generation is the authoritative
// gate, so two racing requests cannot spend the same credits.
func (s *Server) CreateGeneration(c *gin.Context) {
	accountID, ok := accountIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind := generationdomain.Kind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = generationdomain.KindDraft
	}
	cost, ok := generationdomain.Cost(kind)
	if !ok {
		AbortWithError(c, generationdomain.ErrUnknownGeneration)
		return
	}

	ctx := c.Request.Context()
	affordable, err := s.creditSvc.CheckBalance(ctx, accountID, cost)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !affordable {
		AbortWithError(c, creditdomain.ErrInsufficientCredits)
		return
	}

	result, err := s.generator.Generate(ctx, generationdomain.Request{
		Kind:   kind,
		Prompt: req.Prompt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	endpoint := "generations." + string(kind)
	balance, err := s.creditSvc.Debit(ctx, creditdomain.DebitRequest{
		AccountID: accountID,
		Amount:    cost,
		Endpoint:  endpoint,
		RequestID: reqcontext.RequestIDFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, creditdomain.ErrInsufficientCredits) {
			// The admission check passed but a concurrent request drained
			// the balance first. The generation output is discarded.
			s.log.Warn("balance drained between admission check and debit",
				zap.String("account_id", accountID.String()),
				zap.String("endpoint", endpoint),
			)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":              kind,
		"text":              result.Text,
		"credits_spent":     cost,
		"remaining_credits": balance,
	})
}
