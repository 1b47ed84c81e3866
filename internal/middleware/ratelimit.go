package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/iliyamo/patient-records/internal/config"
)

// takeTokenScript refills the bucket stored at KEYS[1] and spends one
// token. ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed (0|1), tokens_left, wait_ms}.
var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local stamp = tonumber(redis.call('HGET', key, 'stamp'))
if not tokens or not stamp then
  tokens, stamp = capacity, now
end

local steps = math.floor((now - stamp) / interval)
if steps > 0 then
  tokens = math.min(capacity, tokens + steps * refill)
  stamp = stamp + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.max(0, stamp + interval - now)
end

redis.call('HSET', key, 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', key, ttl)
return {allowed, tokens, wait}
`)

// LimitedHandler answers a form submission whose bucket is empty.
type LimitedHandler func(c echo.Context, retryAfter time.Duration) error

// TokenBucket throttles login and register submissions with a bucket per
// key held in Redis.
type TokenBucket struct {
    cfg       config.RateLimitConfig
    rdb       *redis.Client
    logger    zerolog.Logger
    onLimited LimitedHandler
}

type bucketState struct {
    allowed    bool
    remaining  int64
    retryAfter time.Duration
}

// NewTokenBucket returns the limiting middleware.  With limiting disabled
// or no Redis client it passes everything through, and Redis errors let
// the request through as well.  onLimited renders the refusal; nil falls
// back to a plain 429.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger zerolog.Logger, onLimited LimitedHandler) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    tb := &TokenBucket{cfg: cfg, rdb: rdb, logger: logger, onLimited: onLimited}
    return tb.middleware
}

func (tb *TokenBucket) middleware(next echo.HandlerFunc) echo.HandlerFunc {
    return func(c echo.Context) error {
        key := bucketKey(tb.cfg, c)
        st, err := tb.take(c.Request().Context(), key, time.Now())
        if err != nil {
            tb.logger.Warn().Err(err).Str("key", key).Msg("ratelimit: redis unavailable, allowing request")
            return next(c)
        }

        h := c.Response().Header()
        h.Set("X-RateLimit-Limit", strconv.Itoa(tb.cfg.Capacity))
        h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.remaining, 10))
        if tb.cfg.Debug {
            h.Set("X-RateLimit-Key", key)
        }
        if st.allowed {
            return next(c)
        }

        h.Set("Retry-After", strconv.Itoa(RetrySeconds(st.retryAfter)))
        tb.logger.Info().
            Str("request_id", requestID(c)).
            Str("key", key).
            Dur("retry_after", st.retryAfter).
            Msg("ratelimit: submission blocked")
        return limited(c, tb.onLimited, st.retryAfter)
    }
}

func (tb *TokenBucket) take(ctx context.Context, key string, now time.Time) (bucketState, error) {
    vals, err := takeTokenScript.Run(ctx, tb.rdb, []string{key},
        now.UnixMilli(),
        tb.cfg.Capacity,
        tb.cfg.RefillTokens,
        tb.cfg.RefillInterval.Milliseconds(),
        int64(tb.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return bucketState{}, err
    }
    return parseBucket(vals)
}

func parseBucket(vals []int64) (bucketState, error) {
    if len(vals) != 3 {
        return bucketState{}, fmt.Errorf("ratelimit: unexpected script result %v", vals)
    }
    return bucketState{
        allowed:    vals[0] == 1,
        remaining:  vals[1],
        retryAfter: time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

func limited(c echo.Context, onLimited LimitedHandler, retryAfter time.Duration) error {
    if onLimited != nil {
        return onLimited(c, retryAfter)
    }
    return echo.NewHTTPError(http.StatusTooManyRequests,
        fmt.Sprintf("Too many attempts. Try again in %d seconds.", RetrySeconds(retryAfter)))
}

// RetrySeconds rounds a wait up to whole seconds, never below one.
func RetrySeconds(d time.Duration) int {
    secs := int(math.Ceil(d.Seconds()))
    if secs < 1 {
        return 1
    }
    return secs
}

// bucketKey scopes a bucket to the form route plus, by strategy, the
// client IP and the submitted username.  Keying on the username slows
// password guessing against one account from many addresses.
func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    username := strings.ToLower(strings.TrimSpace(c.FormValue("username")))
    if username == "" {
        username = "-"
    }

    parts := []string{cfg.Prefix, strings.TrimPrefix(c.Path(), "/")}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip="+ip)
    case "username":
        parts = append(parts, "user="+username)
    default: // ip_username
        parts = append(parts, "ip="+ip, "user="+username)
    }
    return strings.Join(parts, ":")
}
