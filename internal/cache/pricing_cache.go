package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
)

const (
	pricingKeyPrefix  = "pricing"
	defaultPricingTTL = 5 * time.Minute
)

// PricingCache stores resolved price schedules between lookups.
type PricingCache interface {
	Get(ctx context.Context, provider, model string) (*pricingdomain.Pricing, bool, error)
	Set(ctx context.Context, provider, model string, pricing *pricingdomain.Pricing) error
	Delete(ctx context.Context, provider, model string) error
}

type redisPricingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPricingCache returns a Redis-backed cache, or nil when client is nil.
func NewRedisPricingCache(client *redis.Client, ttl time.Duration) PricingCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultPricingTTL
	}
	return &redisPricingCache{client: client, ttl: ttl}
}

func (c *redisPricingCache) Get(ctx context.Context, provider, model string) (*pricingdomain.Pricing, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(pricingKeyPrefix, provider, model)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var pricing pricingdomain.Pricing
	if err := json.Unmarshal(raw, &pricing); err != nil {
		return nil, false, err
	}
	return &pricing, true, nil
}

func (c *redisPricingCache) Set(ctx context.Context, provider, model string, pricing *pricingdomain.Pricing) error {
	if pricing == nil {
		return nil
	}
	payload, err := json.Marshal(pricing)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(pricingKeyPrefix, provider, model), payload, c.ttl).Err()
}

func (c *redisPricingCache) Delete(ctx context.Context, provider, model string) error {
	return c.client.Del(ctx, cacheKey(pricingKeyPrefix, provider, model)).Err()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, ":")
}
