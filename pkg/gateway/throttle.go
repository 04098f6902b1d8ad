package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
)

// Limiter decides whether a worker may submit another Gateway message.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Throttle returns a host admission policy that rate limits worker
// messages addressed to a Gateway. Other messages pass untouched.
func Throttle(l Limiter) host.AdmissionFunc {
	return func(ctx context.Context, sender, contract host.Addr, msg any) error {
		switch msg.(type) {
		case contracts.GatewayLockStake, contracts.GatewayPlaceBet, contracts.GatewaySubmitResult:
		default:
			return nil
		}
		ok, err := l.Allow(ctx, string(sender))
		if err != nil {
			return fmt.Errorf("gateway throttle: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", contracts.ErrRateLimited, sender)
		}
		return nil
	}
}

// Workers idle for longer than visitorIdle lose their bucket. Allow sweeps
// at most once per visitorIdle.
const visitorIdle = 3 * time.Minute

// LocalLimiter keeps one token bucket per worker in memory.
type LocalLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows rps messages per second per worker with the
// given burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Len reports how many workers currently hold a bucket.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.lastSweep.IsZero() {
		l.lastSweep = now
	}
	if now.Sub(l.lastSweep) >= visitorIdle {
		l.prune(now.Add(-visitorIdle))
		l.lastSweep = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Prune forgets workers idle for longer than idle and returns how many
// were dropped.
func (l *LocalLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prune(l.now().Add(-idle))
}

func (l *LocalLimiter) prune(cutoff time.Time) int {
	removed := 0
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			removed++
		}
	}
	return removed
}

// redisTokenBucketScript handles the token bucket algorithm atomically in Redis.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = current unix timestamp (seconds, microsecond precision)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisLimiter shares the per-worker buckets across processes.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rps    float64
	burst  int
}

func NewRedisLimiter(client *redis.Client, prefix string, rps float64, burst int) *RedisLimiter {
	if rps <= 0 {
		rps = 1.0
	}
	return &RedisLimiter{client: client, prefix: prefix, rps: rps, burst: burst}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rps, l.burst, now).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter error: %w", err)
	}
	return res == 1, nil
}
