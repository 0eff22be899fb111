package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/inkfold/inkfold/internal/observability/reqcontext"
	"github.com/inkfold/inkfold/internal/ratelimit"
	"go.uber.org/zap"
)

const accountIDContextKey = "account_id"

// AccountRequired resolves the calling account from the X-Account-Id header.
// Token exchange happens upstream at the gateway; by the time a request lands
// here the header carries a trusted account id.
func (s *Server) AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-Account-Id"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(accountIDContextKey, id)
		ctx := reqcontext.WithAccountID(c.Request.Context(), id.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func accountIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(accountIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// RateLimit throttles the route per account and per endpoint. Redis being
// down fails open: the costed debit path still caps spending.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		accountID, ok := accountIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.AllowAccount(ctx, accountID.String())
		if err != nil {
			s.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "account")
			rejectRateLimited(c, res)
			return
		}

		res, err = s.limiter.AllowEndpoint(ctx, endpoint)
		if err != nil {
			s.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "endpoint")
			rejectRateLimited(c, res)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func rejectRateLimited(c *gin.Context, res ratelimit.Result) {
	seconds := int(res.RetryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
		Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		},
	})
}
