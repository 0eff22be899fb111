package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type provisionAccountRequest struct {
	UserRef string `json:"user_ref"`
	Email   string `json:"email"`
}

func (s *Server) ProvisionAccount(c *gin.Context) {
	var req provisionAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.UserRef) == "" {
		AbortWithError(c, newValidationError("user_ref", "invalid_user_ref", "user_ref is required"))
		return
	}

	account, err := s.accountSvc.Provision(c.Request.Context(), req.UserRef, req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":     account.ID.String(),
		"plan_tier":      account.PlanTier,
		"credit_balance": account.CreditBalance,
	})
}

func (s *Server) GetProfile(c *gin.Context) {
	accountID, ok := accountIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.accountSvc.GetProfile(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) AnonymizeAccount(c *gin.Context) {
	accountID, ok := accountIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.accountSvc.Anonymize(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
