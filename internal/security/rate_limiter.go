package security

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

const rateKeyPrefix = "rate:"

// slidingWindowScript prunes, counts and inserts in one atomic step so two
// concurrent callers on the same identifier cannot both observe a free slot.
// Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_ms = window_ms
	if oldest[2] then
		retry_ms = math.floor(oldest[2]) + window_ms - now_ms
	end
	if retry_ms < 0 then
		retry_ms = 0
	end
	return {0, 0, retry_ms}
end

redis.call('ZADD', key, now_ms, member)
redis.call('PEXPIRE', key, window_ms)
return {1, limit - count - 1, 0}
`)

// RateLimiter is a sliding-window-log limiter over a Redis sorted set per
// identifier. Unlike a fixed window it cannot be doubled up at window edges:
// no more than the limit is admitted in any trailing window.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{client: client, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// CheckAndRecord admits or rejects one request for the identifier under the
// given policy. The timestamp is only recorded when the request is admitted,
// so rejected requests do not extend the window. Policy (limit, window) is
// chosen by the caller; the limiter is policy-free.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, identifier string, limit int, window time.Duration) (models.RateLimitResult, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{rateKeyPrefix + identifier},
		nowMs, windowMs, limit, member,
	).Int64Slice()
	if err != nil {
		l.logger.Error("rate limit check failed", zap.String("identifier", identifier), zap.Error(err))
		return models.RateLimitResult{}, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}
	if len(res) != 3 {
		return models.RateLimitResult{}, appErrors.Clone(appErrors.ErrInternal, "unexpected rate limit script reply")
	}

	if res[0] == 0 {
		retryAfter := time.Duration(res[2]) * time.Millisecond
		return models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetAt:    now.Add(retryAfter),
		}, nil
	}

	return models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: int(res[1]),
		ResetAt:   now.Add(window),
	}, nil
}
