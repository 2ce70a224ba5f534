package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/config"
)

const scopeGenerationUser = "generation:user"

// GenerationLimiter throttles generation requests per user. A nil limiter
// allows everything.
type GenerationLimiter struct {
	bucket *Bucket
	rate   float64
	burst  int
}

// NewGenerationLimiter returns nil when Redis is not configured or the rate
// is disabled.
func NewGenerationLimiter(client *redis.Client, cfg config.Config) *GenerationLimiter {
	if client == nil {
		return nil
	}
	if cfg.Generation.RateLimitRPS <= 0 || cfg.Generation.RateLimitBurst <= 0 {
		return nil
	}
	return &GenerationLimiter{
		bucket: NewBucket(client),
		rate:   cfg.Generation.RateLimitRPS,
		burst:  cfg.Generation.RateLimitBurst,
	}
}

func (l *GenerationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowUser spends one generation from the user's bucket.
func (l *GenerationLimiter) AllowUser(ctx context.Context, userID string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, scopeGenerationUser, strings.TrimSpace(userID), l.rate, l.burst)
}
