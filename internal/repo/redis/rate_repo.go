package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrInvalidWindow = errors.New("invalid rate window payload")

// consumeScript checks every tier before touching any counter, so a request that
// is denied by a later tier never consumes quota in an earlier one.
var consumeScript = goredis.NewScript(`
local n = #KEYS
for i = 1, n do
	local limit = tonumber(ARGV[i * 2 - 1])
	local current = tonumber(redis.call("GET", KEYS[i])) or 0
	if current >= limit then
		local ttl = redis.call("PTTL", KEYS[i])
		return {0, i, current, ttl}
	end
end

local remaining = -1
for i = 1, n do
	local limit = tonumber(ARGV[i * 2 - 1])
	local ttl = tonumber(ARGV[i * 2])
	local count = redis.call("INCR", KEYS[i])
	if redis.call("PTTL", KEYS[i]) < 0 then
		redis.call("PEXPIRE", KEYS[i], ttl)
	end
	local left = limit - count
	if remaining < 0 or left < remaining then
		remaining = left
	end
end

return {1, 0, remaining, 0}
`)

var refundScript = goredis.NewScript(`
local refunded = 0
for i = 1, #KEYS do
	local current = tonumber(redis.call("GET", KEYS[i])) or 0
	if current > 0 then
		redis.call("DECR", KEYS[i])
		refunded = refunded + 1
	end
end
return refunded
`)

var incrementScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[1]))
end
return {count, redis.call("PTTL", KEYS[1])}
`)

var setIfGreaterScript = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]))
local value = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
if current ~= nil and current >= value then
	return {0, current}
end
if ttl > 0 then
	redis.call("SET", KEYS[1], value, "PX", ttl)
else
	redis.call("SET", KEYS[1], value)
end
return {1, value}
`)

type RateRepo struct {
	client *goredis.Client
}

type TierCounter struct {
	Key   string
	Limit int64
	TTL   time.Duration
}

type ConsumeResult struct {
	Allowed bool
	// DeniedIndex is the position of the first exhausted tier, -1 when allowed.
	DeniedIndex int
	Count       int64
	Remaining   int64
	RetryAfter  time.Duration
}

func NewRateRepo(client *goredis.Client) *RateRepo {
	return &RateRepo{client: client}
}

// ConsumeTiers atomically increments all counters if none of them is exhausted.
func (r *RateRepo) ConsumeTiers(ctx context.Context, tiers []TierCounter) (ConsumeResult, error) {
	if r.client == nil {
		return ConsumeResult{}, fmt.Errorf("redis client is nil")
	}
	if len(tiers) == 0 {
		return ConsumeResult{Allowed: true, DeniedIndex: -1, Remaining: -1}, nil
	}

	keys := make([]string, 0, len(tiers))
	args := make([]interface{}, 0, 2*len(tiers))
	for _, tier := range tiers {
		if tier.Key == "" || tier.TTL <= 0 || tier.Limit <= 0 {
			return ConsumeResult{}, ErrInvalidWindow
		}
		keys = append(keys, tier.Key)
		args = append(args, tier.Limit, tier.TTL.Milliseconds())
	}

	raw, err := consumeScript.Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("consume rate tiers: %w", err)
	}

	values, err := int64Slice(raw, 4)
	if err != nil {
		return ConsumeResult{}, err
	}

	if values[0] == 1 {
		return ConsumeResult{
			Allowed:     true,
			DeniedIndex: -1,
			Remaining:   values[2],
		}, nil
	}

	ttl := values[3]
	if ttl < 0 {
		ttl = 0
	}
	return ConsumeResult{
		Allowed:     false,
		DeniedIndex: int(values[1]) - 1,
		Count:       values[2],
		RetryAfter:  time.Duration(ttl) * time.Millisecond,
	}, nil
}

// RefundTiers gives back one unit on each counter, never going below zero.
func (r *RateRepo) RefundTiers(ctx context.Context, keys []string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := refundScript.Run(ctx, r.client, keys).Err(); err != nil {
		return fmt.Errorf("refund rate tiers: %w", err)
	}
	return nil
}

func (r *RateRepo) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.client == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}
	if key == "" || window <= 0 {
		return 0, 0, ErrInvalidWindow
	}

	raw, err := incrementScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment rate key: %w", err)
	}
	values, err := int64Slice(raw, 2)
	if err != nil {
		return 0, 0, err
	}

	ttl := values[1]
	if ttl < 0 {
		ttl = 0
	}
	return values[0], time.Duration(ttl) * time.Millisecond, nil
}

func (r *RateRepo) WindowState(ctx context.Context, key string) (int64, time.Duration, error) {
	if r.client == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return 0, 0, fmt.Errorf("rate key is required")
	}

	count, err := r.client.Get(ctx, key).Int64()
	if err != nil && err != goredis.Nil {
		return 0, 0, fmt.Errorf("get rate key state: %w", err)
	}
	if err == goredis.Nil {
		return 0, 0, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read rate key ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	return count, ttl, nil
}

// SetIfGreater stores value only when it exceeds the current one. It reports
// whether the write happened and the value now stored.
func (r *RateRepo) SetIfGreater(ctx context.Context, key string, value int64, ttl time.Duration) (bool, int64, error) {
	if r.client == nil {
		return false, 0, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return false, 0, fmt.Errorf("rate key is required")
	}
	if ttl < 0 {
		ttl = 0
	}

	raw, err := setIfGreaterScript.Run(ctx, r.client, []string{key}, value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("set if greater: %w", err)
	}
	values, err := int64Slice(raw, 2)
	if err != nil {
		return false, 0, err
	}
	return values[0] == 1, values[1], nil
}

func int64Slice(raw interface{}, want int) ([]int64, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < want {
		return nil, fmt.Errorf("unexpected script result")
	}
	out := make([]int64, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case int64:
			out = append(out, v)
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unexpected script value %q", v)
			}
			out = append(out, n)
		default:
			return nil, fmt.Errorf("unexpected script value type %T", item)
		}
	}
	return out, nil
}
