package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuard(t *testing.T, policy LockoutPolicy) (*LoginAttemptGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLoginAttemptGuard(client, zap.NewNop(), policy), mr
}

func TestGuardAllowsFreshIdentity(t *testing.T) {
	guard, _ := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 5, MaxAttemptsPerIP: 10, Duration: 15 * time.Minute})

	allowed, err := guard.IsAllowed(context.Background(), "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGuardLocksAfterMaxEmailFailures(t *testing.T) {
	guard, _ := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 5, MaxAttemptsPerIP: 10, Duration: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
		allowed, err := guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should still be allowed", i+1)
	}

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
	allowed, err := guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The same origin with a different account is still under the IP cap.
	allowed, err = guard.IsAllowed(ctx, "other@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGuardLocksOriginAcrossAccounts(t *testing.T) {
	guard, _ := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 5, MaxAttemptsPerIP: 3, Duration: 15 * time.Minute})
	ctx := context.Background()

	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, email := range emails {
		require.NoError(t, guard.RecordFailure(ctx, email, "10.0.0.9"))
	}

	allowed, err := guard.IsAllowed(ctx, "d@example.com", "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGuardClearResetsCounters(t *testing.T) {
	guard, _ := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 2, MaxAttemptsPerIP: 10, Duration: 15 * time.Minute})
	ctx := context.Background()

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))

	allowed, err := guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, guard.Clear(ctx, "user@example.com", "10.0.0.1"))

	allowed, err = guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGuardCountersExpire(t *testing.T) {
	guard, mr := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 1, MaxAttemptsPerIP: 10, Duration: 15 * time.Minute})
	ctx := context.Background()

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
	allowed, err := guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(16 * time.Minute)

	allowed, err = guard.IsAllowed(ctx, "user@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGuardFailureRefreshesTTL(t *testing.T) {
	guard, mr := newGuard(t, LockoutPolicy{MaxAttemptsPerEmail: 5, MaxAttemptsPerIP: 10, Duration: 15 * time.Minute})
	ctx := context.Background()

	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
	mr.FastForward(10 * time.Minute)
	require.NoError(t, guard.RecordFailure(ctx, "user@example.com", "10.0.0.1"))
	mr.FastForward(10 * time.Minute)

	// 20 minutes after the first failure the counter is still alive because
	// the second failure reset its TTL.
	key := "lockout:email:" + HashIdentifier("user@example.com")
	require.True(t, mr.Exists(key))
	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestHashIdentifierNormalizes(t *testing.T) {
	assert.Equal(t, HashIdentifier("User@Example.com "), HashIdentifier("user@example.com"))
	assert.NotEqual(t, HashIdentifier("a@example.com"), HashIdentifier("b@example.com"))
	assert.Len(t, HashIdentifier("user@example.com"), 64)
}
