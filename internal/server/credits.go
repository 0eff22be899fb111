package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/inkfold/inkfold/internal/credit/domain"
	"github.com/inkfold/inkfold/pkg/db/pagination"
)

func (s *Server) GetBalance(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"account_id":     profile.AccountID.String(),
		"credit_balance": profile.CreditBalance,
		"plan_tier":      profile.PlanTier,
	})
}

func (s *Server) GetHistory(c *gin.Context) {
	accountID, ok := accountIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creditSvc.ListEntries(c.Request.Context(), creditdomain.ListEntriesRequest{
		Pagination: page,
		AccountID:  accountID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
