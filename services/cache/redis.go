package cachesvc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/attendly/core"
)

// Client wraps redis for the deny-list, rate limiting and response caching.
// Without a reachable server it degrades: the deny-list falls back to memory,
// caching & rate limiting let everything through.
type Client struct {
	rdb    *redis.Client
	prefix string
	logger core.Logger

	mu     sync.Mutex
	denied map[string]time.Time // fallback deny-list
}

// New connects to conf.Redis.Addr; an empty address or a failed ping yields a degraded Client.
func New(conf *core.Config, logger core.Logger) *Client {
	c := &Client{prefix: conf.AppName, logger: logger, denied: make(map[string]time.Time)}
	if conf.Redis.Addr == "" {
		return c
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn(fmt.Sprintf("redis unavailable at %s, running without it: %v", conf.Redis.Addr, err))
		_ = rdb.Close()
		return c
	}
	c.rdb = rdb
	return c
}

// NewWithRedis wraps an existing redis client.
func NewWithRedis(rdb *redis.Client, prefix string, logger core.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, logger: logger, denied: make(map[string]time.Time)}
}

func (c *Client) Enabled() bool { return c != nil && c.rdb != nil }

func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Deny-list

// DenyToken rejects the token id until it expires at exp.
func (c *Client) DenyToken(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	if c.Enabled() {
		if err := c.rdb.Set(ctx, c.key("deny", jti), 1, ttl).Err(); err != nil {
			return errors.Wrap(err, "denying token")
		}
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, until := range c.denied {
		if until.Before(now) {
			delete(c.denied, id)
		}
	}
	c.denied[jti] = exp
	return nil
}

func (c *Client) IsTokenDenied(ctx context.Context, jti string) (bool, error) {
	if c.Enabled() {
		n, err := c.rdb.Exists(ctx, c.key("deny", jti)).Result()
		if err != nil {
			return false, errors.Wrap(err, "checking denied token")
		}
		return n > 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.denied[jti]
	return ok && until.After(time.Now()), nil
}

// Rate limiting

var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
	tokens = math.min(capacity, tokens + intervals)
	last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Take consumes one token of the bucket named key. A bucket holds capacity tokens
// and gets one back every interval. Errors allow the request.
func (c *Client) Take(ctx context.Context, key string, capacity int, interval time.Duration) (Decision, error) {
	allow := Decision{Allowed: true, Remaining: int64(capacity)}
	if !c.Enabled() || capacity <= 0 || interval <= 0 {
		return allow, nil
	}
	ttl := int64(interval/time.Second) * int64(capacity)
	if ttl < 60 {
		ttl = 60
	}
	vals, err := tokenBucket.Run(ctx, c.rdb, []string{c.key("rl", key)},
		time.Now().UnixMilli(), capacity, interval.Milliseconds(), ttl).Slice()
	if err != nil {
		return allow, errors.Wrap(err, "running token bucket")
	}
	if len(vals) != 3 {
		return allow, errors.Errorf("unexpected token bucket result: %v", vals)
	}
	return Decision{
		Allowed:    asInt64(vals[0]) == 1,
		Remaining:  asInt64(vals[1]),
		RetryAfter: time.Duration(asInt64(vals[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// Response cache

// Generation returns the cache generation of scope; bumping it invalidates every entry of the scope.
func (c *Client) Generation(ctx context.Context, scope string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	gen, err := c.rdb.Get(ctx, c.key("gen", scope)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *Client) Bump(ctx context.Context, scope string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, c.key("gen", scope)).Err()
}

// Get returns the cached value of key, if any.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	bs, err := c.rdb.Get(ctx, c.key("cache", key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading cache")
	}
	return bs, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Set(ctx, c.key("cache", key), val, ttl).Err()
}
