package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Bucket state lives in a hash at creditgate:ratelimit:<scope>:<subject>.
// Refill uses the Redis server clock so replicas agree on elapsed time.
const keyPrefix = "creditgate:ratelimit:"

var (
	ErrLimiterDisabled = errors.New("rate_limiter_disabled")
	ErrInvalidBucket   = errors.New("invalid_rate_limit_bucket")
	errScriptReply     = errors.New("invalid_rate_limit_reply")
)

const takeScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now_ms = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "allowance", "refilled_at")
local allowance = tonumber(state[1])
local refilled_at = tonumber(state[2])
if allowance == nil or refilled_at == nil then
  allowance = capacity
  refilled_at = now_ms
end

local elapsed = now_ms - refilled_at
if elapsed < 0 then
  elapsed = 0
end
allowance = math.min(capacity, allowance + (elapsed * rate / 1000))

local granted = 0
local wait_ms = 0
if allowance >= 1 then
  granted = 1
  allowance = allowance - 1
else
  wait_ms = math.ceil((1 - allowance) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "allowance", tostring(allowance), "refilled_at", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)

return {granted, tostring(allowance), wait_ms, now_ms}
`

// Decision is the outcome of taking one unit from a bucket.
type Decision struct {
	Allowed    bool
	Capacity   int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Bucket is a token bucket kept in Redis.
type Bucket struct {
	client *redis.Client
	script *redis.Script
}

func NewBucket(client *redis.Client) *Bucket {
	if client == nil {
		return nil
	}
	return &Bucket{client: client, script: redis.NewScript(takeScript)}
}

// Take spends one unit of the scope/subject bucket. rate is units refilled
// per second and capacity the burst size.
func (b *Bucket) Take(ctx context.Context, scope, subject string, rate float64, capacity int) (*Decision, error) {
	if b == nil || b.client == nil {
		return nil, ErrLimiterDisabled
	}
	if scope == "" || subject == "" || rate <= 0 || capacity <= 0 {
		return nil, ErrInvalidBucket
	}

	reply, err := b.script.Run(ctx, b.client,
		[]string{keyPrefix + scope + ":" + subject},
		rate, capacity, bucketTTL(rate, capacity).Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 4 {
		return nil, errScriptReply
	}

	remaining, err := strconv.ParseFloat(toString(reply[1]), 64)
	if err != nil {
		return nil, errScriptReply
	}
	retryAfter := time.Duration(toInt64(reply[2])) * time.Millisecond
	return &Decision{
		Allowed:    toInt64(reply[0]) == 1,
		Capacity:   capacity,
		Remaining:  int(remaining),
		RetryAfter: retryAfter,
		ResetAt:    time.UnixMilli(toInt64(reply[3])).Add(retryAfter),
	}, nil
}

// bucketTTL keeps an idle bucket for two full refills.
func bucketTTL(rate float64, capacity int) time.Duration {
	seconds := math.Ceil(2 * float64(capacity) / rate)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
