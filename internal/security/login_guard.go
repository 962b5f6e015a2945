package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockoutEmailPrefix = "lockout:email:"
	lockoutIPPrefix    = "lockout:ip:"
)

// LockoutPolicy configures the failed-login guard.
type LockoutPolicy struct {
	MaxAttemptsPerEmail int
	MaxAttemptsPerIP    int
	Duration            time.Duration
}

// LoginAttemptGuard tracks failed authentication attempts per credential
// identity and per network origin. It is independent of the request rate
// limiter: only failures count, and a steady trickle of failures keeps the
// lockout alive because every increment refreshes the TTL.
type LoginAttemptGuard struct {
	client *redis.Client
	logger *zap.Logger
	policy LockoutPolicy
}

// NewLoginAttemptGuard constructs a LoginAttemptGuard.
func NewLoginAttemptGuard(client *redis.Client, logger *zap.Logger, policy LockoutPolicy) *LoginAttemptGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginAttemptGuard{client: client, logger: logger, policy: policy}
}

// IsAllowed reports whether a login attempt may proceed. Either counter
// reaching its maximum denies the attempt.
func (g *LoginAttemptGuard) IsAllowed(ctx context.Context, email, origin string) (bool, error) {
	pipe := g.client.Pipeline()
	emailGet := pipe.Get(ctx, lockoutEmailPrefix+HashIdentifier(email))
	ipGet := pipe.Get(ctx, lockoutIPPrefix+origin)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		g.logger.Error("lockout check failed", zap.Error(err))
		return false, err
	}

	emailCount := counterValue(emailGet)
	ipCount := counterValue(ipGet)

	if emailCount >= g.policy.MaxAttemptsPerEmail || ipCount >= g.policy.MaxAttemptsPerIP {
		return false, nil
	}
	return true, nil
}

// RecordFailure increments both counters and resets their TTL to the lockout
// duration.
func (g *LoginAttemptGuard) RecordFailure(ctx context.Context, email, origin string) error {
	emailKey := lockoutEmailPrefix + HashIdentifier(email)
	ipKey := lockoutIPPrefix + origin

	pipe := g.client.TxPipeline()
	pipe.Incr(ctx, emailKey)
	pipe.Expire(ctx, emailKey, g.policy.Duration)
	pipe.Incr(ctx, ipKey)
	pipe.Expire(ctx, ipKey, g.policy.Duration)
	if _, err := pipe.Exec(ctx); err != nil {
		g.logger.Error("failed to record login failure", zap.Error(err))
		return err
	}
	return nil
}

// Clear deletes both counters. Called only after a successful authentication.
func (g *LoginAttemptGuard) Clear(ctx context.Context, email, origin string) error {
	if err := g.client.Del(ctx,
		lockoutEmailPrefix+HashIdentifier(email),
		lockoutIPPrefix+origin,
	).Err(); err != nil {
		g.logger.Error("failed to clear login failures", zap.Error(err))
		return err
	}
	return nil
}

// HashIdentifier hashes a credential identifier for use in store keys and
// logs, so raw emails never appear in either.
func HashIdentifier(id string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(id))))
	return hex.EncodeToString(sum[:])
}

func counterValue(cmd *redis.StringCmd) int {
	raw, err := cmd.Result()
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
