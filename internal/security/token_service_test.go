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

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

func newTokenService(t *testing.T) (*TokenService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewTokenService(client, zap.NewNop(), TokenConfig{
		Secret:     "test-secret",
		Issuer:     "scout-api",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	return svc, mr
}

func testUser() *models.User {
	company := "c1"
	return &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleRecruiter, CompanyID: &company, Active: true}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	svc, _ := newTokenService(t)

	token, claims, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	verified, err := svc.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", verified.UserID)
	assert.Equal(t, models.TokenTypeAccess, verified.TokenType)
	assert.Equal(t, claims.ID, verified.ID)
}

func TestAccessTokenUniqueIdentifiers(t *testing.T) {
	svc, _ := newTokenService(t)

	_, first, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)
	_, second, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestVerifyExpiredAccessToken(t *testing.T) {
	svc, _ := newTokenService(t)

	now := time.Now()
	svc.WithClock(func() time.Time { return now })
	token, _, err := svc.IssueAccessToken(testUser(), time.Minute)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = svc.VerifyAccessToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestVerifyTamperedToken(t *testing.T) {
	svc, _ := newTokenService(t)

	token, _, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(context.Background(), token+"x")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTokenInvalid)
}

func TestRevokeAccessToken(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	token, _, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, token))

	_, err = svc.VerifyAccessToken(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrTokenRevoked)
}

func TestRevokedTokenReportsExpiredAfterNaturalExpiry(t *testing.T) {
	svc, mr := newTokenService(t)
	ctx := context.Background()

	now := time.Now()
	svc.WithClock(func() time.Time { return now })
	token, claims, err := svc.IssueAccessToken(testUser(), time.Minute)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return now.Add(10 * time.Second) })
	require.NoError(t, svc.Revoke(ctx, token))

	svc.WithClock(func() time.Time { return now.Add(11 * time.Second) })
	_, err = svc.VerifyAccessToken(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrTokenRevoked)

	// Past the natural lifetime the denylist entry is still present, but the
	// caller must see Expired, not Revoked.
	svc.WithClock(func() time.Time { return now.Add(61 * time.Second) })
	require.True(t, mr.Exists("revoked:"+claims.ID))
	_, err = svc.VerifyAccessToken(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTokenExpired)
	assert.NotErrorIs(t, err, appErrors.ErrTokenRevoked)
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	svc, mr := newTokenService(t)
	ctx := context.Background()

	now := time.Now()
	svc.WithClock(func() time.Time { return now })
	token, _, err := svc.IssueAccessToken(testUser(), time.Minute)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	require.NoError(t, svc.Revoke(ctx, token))
	assert.Empty(t, mr.Keys())
}

func TestRevocationRecordExpiresWithToken(t *testing.T) {
	svc, mr := newTokenService(t)
	ctx := context.Background()

	token, claims, err := svc.IssueAccessToken(testUser(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token))

	ttl := mr.TTL("revoked:" + claims.ID)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	token, claims, err := svc.IssueRefreshToken(ctx, testUser())
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, claims.TokenType)

	verified, err := svc.VerifyRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, verified.ID)

	require.NoError(t, svc.RevokeRefresh(ctx, verified))

	_, err = svc.VerifyRefreshToken(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrTokenRevoked)
}

func TestRefreshTokenNotUsableAsAccess(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	refresh, _, err := svc.IssueRefreshToken(ctx, testUser())
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(ctx, refresh)
	assert.ErrorIs(t, err, appErrors.ErrTokenInvalid)

	access, _, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)

	_, err = svc.VerifyRefreshToken(ctx, access)
	assert.ErrorIs(t, err, appErrors.ErrTokenInvalid)
}

func TestVerifyFailsClosedWhenStoreDown(t *testing.T) {
	svc, mr := newTokenService(t)
	ctx := context.Background()

	token, _, err := svc.IssueAccessToken(testUser(), 0)
	require.NoError(t, err)

	mr.Close()

	_, err = svc.VerifyAccessToken(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrServiceUnavailable)
}
