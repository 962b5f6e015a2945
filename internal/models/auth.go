package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types embedded in claims so a refresh token can never be replayed
// as an access token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTClaims carries identity and tenant data inside signed tokens. The
// RegisteredClaims.ID field holds the crypto-random token identifier used by
// the revocation denylist.
type JWTClaims struct {
	UserID    string   `json:"uid"`
	Email     string   `json:"email,omitempty"`
	Role      UserRole `json:"role,omitempty"`
	CompanyID *string  `json:"company_id,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// LoginRequest is the login payload plus request metadata filled by the
// handler.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`

	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`

	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshTokenResponse carries the rotated token pair.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest updates the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=12"`
}

// Session is the server-side session record kept in the shared store,
// indexed both by session ID and by user ID for bulk revocation.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokeAllResult reports what a bulk revocation removed.
type RevokeAllResult struct {
	RevokedSessions      int `json:"revoked_sessions"`
	RevokedRefreshTokens int `json:"revoked_refresh_tokens"`
}

// RateLimitResult is the outcome of one sliding-window check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}
