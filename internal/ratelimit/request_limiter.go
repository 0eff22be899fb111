package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/inkfold/inkfold/internal/config"
)

const (
	keyRequestAccount  = "requests:account:%s"
	keyRequestEndpoint = "requests:endpoint:%s"
)

// RequestLimiter throttles costed API calls per account and per endpoint. A
// nil limiter (rate limiting disabled) allows everything.
type RequestLimiter struct {
	enabled bool

	bucket *TokenBucket

	accountRate   float64
	accountBurst  int
	endpointRate  float64
	endpointBurst int
}

func NewRequestLimiter(cfg config.Config) (*RequestLimiter, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if cfg.RateLimitAccountRate <= 0 || cfg.RateLimitAccountBurst <= 0 {
		return nil, errors.New("account rate limit must be positive")
	}
	if cfg.RateLimitEndpointRate <= 0 || cfg.RateLimitEndpointBurst <= 0 {
		return nil, errors.New("endpoint rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &RequestLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		accountRate:   cfg.RateLimitAccountRate,
		accountBurst:  cfg.RateLimitAccountBurst,
		endpointRate:  cfg.RateLimitEndpointRate,
		endpointBurst: cfg.RateLimitEndpointBurst,
	}, nil
}

func (l *RequestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *RequestLimiter) AllowAccount(ctx context.Context, accountID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRequestAccount, strings.TrimSpace(accountID)), l.accountRate, l.accountBurst)
}

func (l *RequestLimiter) AllowEndpoint(ctx context.Context, endpoint string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRequestEndpoint, strings.TrimSpace(endpoint)), l.endpointRate, l.endpointBurst)
}
