package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

// Key namespaces owned by the token service inside the shared store.
const (
	revokedKeyPrefix = "revoked:"
	refreshKeyPrefix = "refresh:"
)

// TokenConfig carries signing material and lifetimes.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, verifies and revokes signed bearer tokens. Access
// tokens are stateless to verify apart from the revocation denylist; refresh
// tokens additionally require their store entry to still exist, so deleting
// the entry revokes them before their stated expiry.
type TokenService struct {
	client *redis.Client
	logger *zap.Logger
	config TokenConfig
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(client *redis.Client, logger *zap.Logger, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{client: client, logger: logger, config: config, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// IssueAccessToken signs an access token for the user. No store side effect;
// the jti is crypto-random so two tokens issued in the same instant never
// collide.
func (s *TokenService) IssueAccessToken(user *models.User, ttl time.Duration) (string, *models.JWTClaims, error) {
	if ttl <= 0 {
		ttl = s.config.AccessTTL
	}
	return s.sign(user, models.TokenTypeAccess, ttl)
}

// IssueRefreshToken signs a refresh token and registers its jti in the store
// with a matching TTL. Possession of a valid signature alone is not enough to
// redeem it.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, *models.JWTClaims, error) {
	token, claims, err := s.sign(user, models.TokenTypeRefresh, s.config.RefreshTTL)
	if err != nil {
		return "", nil, err
	}
	key := refreshKey(user.ID, claims.ID)
	if err := s.client.Set(ctx, key, "valid", s.config.RefreshTTL).Err(); err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to register refresh token")
	}
	return token, claims, nil
}

// VerifyAccessToken checks signature and expiry first, then the revocation
// denylist. The denylist lookup fails closed: an unreachable store is never
// treated as "not revoked".
func (s *TokenService) VerifyAccessToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != models.TokenTypeAccess {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "not an access token")
	}

	revoked, err := s.client.Exists(ctx, revokedKeyPrefix+claims.ID).Result()
	if err != nil {
		s.logger.Error("revocation check failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}
	if revoked > 0 {
		return nil, appErrors.ErrTokenRevoked
	}
	return claims, nil
}

// VerifyRefreshToken validates the signature and expiry, then requires the
// refresh entry to still exist in the store.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != models.TokenTypeRefresh {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "not a refresh token")
	}

	exists, err := s.client.Exists(ctx, refreshKey(claims.UserID, claims.ID)).Result()
	if err != nil {
		s.logger.Error("refresh token lookup failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}
	if exists == 0 {
		return nil, appErrors.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke denylists a token for the remainder of its lifetime. Expired or
// malformed tokens are a no-op: there is nothing left to protect, and the
// denylist stays bounded to tokens revoked before natural expiry.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, revokedKeyPrefix+claims.ID, "revoked", remaining).Err(); err != nil {
		s.logger.Error("failed to write revocation record", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to revoke token")
	}
	return nil
}

// RevokeRefresh deletes a refresh token's store entry, invalidating it
// immediately regardless of its stated expiry.
func (s *TokenService) RevokeRefresh(ctx context.Context, claims *models.JWTClaims) error {
	if err := s.client.Del(ctx, refreshKey(claims.UserID, claims.ID)).Err(); err != nil {
		s.logger.Error("failed to delete refresh token entry", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to revoke refresh token")
	}
	return nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.config.AccessTTL
}

func (s *TokenService) sign(user *models.User, tokenType string, ttl time.Duration) (string, *models.JWTClaims, error) {
	issuedAt := s.now().UTC()
	claims := &models.JWTClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// parse validates signature and time claims. Expiry is reported as its own
// error kind before any store lookup happens, so revocation status is never
// leaked for a token that is already dead.
func (s *TokenService) parse(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.ErrTokenExpired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTokenInvalid.Code, appErrors.ErrTokenInvalid.Status, appErrors.ErrTokenInvalid.Message)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.ErrTokenInvalid
	}
	if claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "token has no identifier")
	}
	return claims, nil
}

func refreshKey(userID, jti string) string {
	return refreshKeyPrefix + userID + ":" + jti
}
