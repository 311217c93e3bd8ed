package distributed

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	slcontext "github.com/vnykmshr/streamlimit/pkg/common/context"
	slerrors "github.com/vnykmshr/streamlimit/pkg/common/errors"
	"github.com/vnykmshr/streamlimit/pkg/throttle/bucket"
)

// redisBudget implements Budget with a token bucket kept in Redis.
// All accounting happens inside Lua scripts so concurrent instances
// see one atomic bucket.
type redisBudget struct {
	cfg  Config
	keys map[string]string

	reserveScript *redis.Script
	refundScript  *redis.Script
}

func newRedisBudget(cfg Config) (Budget, error) {
	rb := &redisBudget{
		cfg:           cfg,
		keys:          redisKeys(cfg.Key),
		reserveScript: redis.NewScript(luaReserve),
		refundScript:  redis.NewScript(luaRefund),
	}

	if err := rb.initialize(context.Background()); err != nil {
		return nil, err
	}
	return rb, nil
}

// initialize seeds the shared state: a full bucket, the configuration
// hash, and this instance's registration.
func (rb *redisBudget) initialize(ctx context.Context) error {
	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	pipe := rb.cfg.Redis.Pipeline()

	pipe.SetNX(ctx, rb.keys["tokens"], float64(rb.cfg.Capacity), rb.cfg.KeyTTL)
	pipe.SetNX(ctx, rb.keys["last"], timeToFloat(time.Now()), rb.cfg.KeyTTL)

	pipe.HSetNX(ctx, rb.keys["config"], "rate", float64(rb.cfg.Rate))
	pipe.HSetNX(ctx, rb.keys["config"], "capacity", rb.cfg.Capacity)
	pipe.Expire(ctx, rb.keys["config"], rb.cfg.KeyTTL)

	pipe.SAdd(ctx, rb.keys["instances"], rb.cfg.InstanceID)
	pipe.Expire(ctx, rb.keys["instances"], rb.cfg.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return slerrors.NewOperationError("distributed", "initialize", err)
	}
	return nil
}

// Reserve draws up to n bytes from the shared bucket. The grant is
// capped at the configured capacity; when the bucket cannot cover it
// yet, the returned wait says when to retry.
func (rb *redisBudget) Reserve(ctx context.Context, n int64) (int64, time.Duration, error) {
	if n <= 0 {
		return 0, 0, nil
	}

	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	result, err := rb.reserveScript.Run(ctx, rb.cfg.Redis, []string{
		rb.keys["tokens"],
		rb.keys["last"],
		rb.keys["config"],
		rb.keys["stats"],
	},
		n,
		timeToFloat(time.Now()),
		float64(rb.cfg.Rate),
		rb.cfg.Capacity,
		int64(rb.cfg.KeyTTL.Seconds()),
	).Result()
	if err != nil {
		return 0, 0, slerrors.NewOperationError("distributed", "Reserve", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return 0, 0, slerrors.NewOperationError("distributed", "Reserve", slerrors.ErrRateLimited).
			WithContext("unexpected script result shape")
	}

	granted, _ := resultSlice[0].(int64)
	delayStr, _ := resultSlice[1].(string)
	delaySeconds, _ := strconv.ParseFloat(delayStr, 64)

	return granted, time.Duration(delaySeconds * float64(time.Second)), nil
}

// Refund returns unused bytes from a short transfer, capped at capacity.
func (rb *redisBudget) Refund(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}

	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	err := rb.refundScript.Run(ctx, rb.cfg.Redis, []string{
		rb.keys["tokens"],
		rb.keys["config"],
		rb.keys["stats"],
	},
		n,
		rb.cfg.Capacity,
	).Err()
	if err != nil {
		return slerrors.NewOperationError("distributed", "Refund", err)
	}
	return nil
}

// SetRate changes the refill rate for all instances.
func (rb *redisBudget) SetRate(ctx context.Context, rate bucket.Limit) error {
	if rate <= 0 {
		return slerrors.NewValidationError("distributed", "rate", float64(rate), "must be positive")
	}

	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	if err := rb.cfg.Redis.HSet(ctx, rb.keys["config"], "rate", float64(rate)).Err(); err != nil {
		return slerrors.NewOperationError("distributed", "SetRate", err)
	}
	rb.cfg.Rate = rate
	return nil
}

// SetCapacity changes the burst capacity for all instances.
func (rb *redisBudget) SetCapacity(ctx context.Context, capacity int64) error {
	if capacity <= 0 {
		return slerrors.NewValidationError("distributed", "capacity", capacity, "must be positive")
	}

	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	if err := rb.cfg.Redis.HSet(ctx, rb.keys["config"], "capacity", capacity).Err(); err != nil {
		return slerrors.NewOperationError("distributed", "SetCapacity", err)
	}
	rb.cfg.Capacity = capacity
	return nil
}

// Stats returns a snapshot of the shared budget.
func (rb *redisBudget) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	pipe := rb.cfg.Redis.Pipeline()
	tokensCmd := pipe.Get(ctx, rb.keys["tokens"])
	lastCmd := pipe.Get(ctx, rb.keys["last"])
	configCmd := pipe.HGetAll(ctx, rb.keys["config"])
	statsCmd := pipe.HGetAll(ctx, rb.keys["stats"])
	instancesCmd := pipe.SMembers(ctx, rb.keys["instances"])

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, slerrors.NewOperationError("distributed", "Stats", err)
	}

	tokens, _ := strconv.ParseFloat(tokensCmd.Val(), 64)
	last, _ := strconv.ParseFloat(lastCmd.Val(), 64)

	configMap := configCmd.Val()
	rate, _ := strconv.ParseFloat(configMap["rate"], 64)
	capacity, _ := strconv.ParseInt(configMap["capacity"], 10, 64)

	statsMap := statsCmd.Val()
	reserved, _ := strconv.ParseInt(statsMap["reserved_bytes"], 10, 64)
	refunded, _ := strconv.ParseInt(statsMap["refunded_bytes"], 10, 64)
	waits, _ := strconv.ParseInt(statsMap["deferred_waits"], 10, 64)

	return &Stats{
		Rate:            bucket.Limit(rate),
		Capacity:        capacity,
		Tokens:          tokens,
		LastRefill:      floatToTime(last),
		ReservedBytes:   reserved,
		RefundedBytes:   refunded,
		DeferredWaits:   waits,
		ActiveInstances: instancesCmd.Val(),
	}, nil
}

// Reset clears the shared state and reinitializes it.
func (rb *redisBudget) Reset(ctx context.Context) error {
	ctx, cancel := slcontext.WithTimeoutOrCancel(ctx, rb.cfg.RedisTimeout)
	defer cancel()

	keys := make([]string, 0, len(rb.keys))
	for _, key := range rb.keys {
		keys = append(keys, key)
	}
	if err := rb.cfg.Redis.Del(ctx, keys...).Err(); err != nil {
		return slerrors.NewOperationError("distributed", "Reset", err)
	}
	return rb.initialize(ctx)
}

// Close deregisters this instance. The shared bucket stays live for the
// remaining instances.
func (rb *redisBudget) Close() error {
	ctx, cancel := slcontext.WithTimeoutOrCancel(context.Background(), rb.cfg.RedisTimeout)
	defer cancel()
	return rb.cfg.Redis.SRem(ctx, rb.keys["instances"], rb.cfg.InstanceID).Err()
}

// luaReserve refills the shared bucket from elapsed time, then either
// consumes a capacity-capped grant or reports how long to wait. The
// rate and capacity stored in the config hash win over the caller's
// arguments so SetRate propagates to every instance.
const luaReserve = `
-- KEYS[1]: tokens key
-- KEYS[2]: last_refill key
-- KEYS[3]: config key
-- KEYS[4]: stats key
-- ARGV[1]: bytes requested
-- ARGV[2]: current time (seconds)
-- ARGV[3]: fallback refill rate
-- ARGV[4]: fallback capacity
-- ARGV[5]: key TTL (seconds)

local requested = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[5])

local cfg = redis.call('HMGET', KEYS[3], 'rate', 'capacity')
local rate = tonumber(cfg[1]) or tonumber(ARGV[3])
local capacity = tonumber(cfg[2]) or tonumber(ARGV[4])

local tokens = tonumber(redis.call('GET', KEYS[1]) or capacity)
local last = tonumber(redis.call('GET', KEYS[2]) or now)

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * rate)

local grant = math.min(requested, capacity)

if tokens >= grant then
    tokens = tokens - grant
    redis.call('SET', KEYS[1], tostring(tokens), 'EX', ttl)
    redis.call('SET', KEYS[2], tostring(now), 'EX', ttl)
    redis.call('HINCRBY', KEYS[4], 'reserved_bytes', grant)
    return {grant, "0"}
else
    redis.call('SET', KEYS[1], tostring(tokens), 'EX', ttl)
    redis.call('SET', KEYS[2], tostring(now), 'EX', ttl)
    redis.call('HINCRBY', KEYS[4], 'deferred_waits', 1)
    return {0, tostring((grant - tokens) / rate)}
end
`

// luaRefund returns unused bytes to the bucket, clamped at capacity.
const luaRefund = `
-- KEYS[1]: tokens key
-- KEYS[2]: config key
-- KEYS[3]: stats key
-- ARGV[1]: bytes to refund
-- ARGV[2]: fallback capacity

local refund = tonumber(ARGV[1])
local capacity = tonumber(redis.call('HGET', KEYS[2], 'capacity')) or tonumber(ARGV[2])

local tokens = tonumber(redis.call('GET', KEYS[1]) or capacity)
tokens = math.min(capacity, tokens + refund)

redis.call('SET', KEYS[1], tostring(tokens), 'KEEPTTL')
redis.call('HINCRBY', KEYS[3], 'refunded_bytes', refund)

return tokens
`
