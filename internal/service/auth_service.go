package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scout-hq/scout-api/internal/models"
	"github.com/scout-hq/scout-api/internal/security"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	RecordLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTTL     time.Duration
	RememberMeTTL time.Duration
	// FailureDelay is the fixed artificial delay added on credential
	// mismatch so the failure path's timing matches the hash-compare path.
	FailureDelay time.Duration
	// GuardAllowOnError keeps logins available when the lockout store is
	// unreachable. Documented availability trade-off; token verification
	// never fails open.
	GuardAllowOnError bool
}

// AuthService orchestrates login, refresh, logout and bulk revocation over
// the token service, session store and login guard.
type AuthService struct {
	repo      authUserRepository
	tokens    *security.TokenService
	sessions  *security.SessionStore
	guard     *security.LoginAttemptGuard
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig
	sleep     func(time.Duration)
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *security.TokenService, sessions *security.SessionStore, guard *security.LoginAttemptGuard, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		sessions:  sessions,
		guard:     guard,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		sleep:     time.Sleep,
	}
}

// WithSleep overrides the artificial-delay sleeper. Test hook.
func (s *AuthService) WithSleep(sleep func(time.Duration)) *AuthService {
	s.sleep = sleep
	return s
}

// Login authenticates a user and returns issued tokens plus a session.
// The lockout guard is consulted before any password comparison, failed
// attempts are recorded with a fixed delay, and the response message never
// distinguishes an unknown account from a wrong password.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	allowed, err := s.guard.IsAllowed(ctx, req.Email, req.IP)
	if err != nil {
		if !s.config.GuardAllowOnError {
			return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
		}
		s.logger.Warn("lockout store unreachable, allowing login attempt", zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.metrics.RecordLockout()
		s.audit(ctx, nil, models.AuditActionLockout, req, map[string]interface{}{"email_hash": security.HashIdentifier(req.Email)})
		return nil, appErrors.ErrLocked
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.failLogin(ctx, req, nil, "unknown_account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.failLogin(ctx, req, user, "invalid_credentials")
	}

	if !user.Active {
		s.audit(ctx, &user.ID, models.AuditActionLoginFailed, req, map[string]interface{}{"reason": "account_disabled"})
		return nil, appErrors.ErrInactiveAccount
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now().UTC()) {
		s.audit(ctx, &user.ID, models.AuditActionLoginFailed, req, map[string]interface{}{"reason": "account_locked"})
		return nil, appErrors.WithMeta(appErrors.ErrLocked, map[string]interface{}{"locked_until": user.LockedUntil.UTC()})
	}

	if err := s.guard.Clear(ctx, req.Email, req.IP); err != nil {
		s.logger.Warn("failed to clear login failures", zap.Error(err))
	}

	accessTTL := s.config.AccessTTL
	if req.RememberMe && s.config.RememberMeTTL > 0 {
		accessTTL = s.config.RememberMeTTL
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, accessTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, _, err := s.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, user.ID, req.IP, req.UserAgent, accessTTL)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.metrics.RecordLogin(true)
	s.audit(ctx, &user.ID, models.AuditActionLogin, req, map[string]interface{}{"session_id": session.ID})

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int64(accessTTL.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User: models.UserInfo{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			Role:      user.Role,
			CompanyID: user.CompanyID,
		},
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is
// rotated out: its store entry is deleted the moment it is redeemed.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.tokens.VerifyRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	if err := s.tokens.RevokeRefresh(ctx, claims); err != nil {
		s.logger.Warn("failed to rotate out used refresh token", zap.Error(err))
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, s.config.AccessTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &user.ID, models.AuditActionRefresh, models.LoginRequest{IP: req.IP, UserAgent: req.UserAgent}, map[string]interface{}{"rotated": true})

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout revokes the presented access token, tears down the session and
// invalidates the refresh token when one is supplied.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken, refreshToken, sessionID string, meta models.LoginRequest) error {
	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return err
	}
	s.metrics.RecordRevocation("access")

	if refreshToken != "" {
		claims, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
		if err == nil {
			if claims.UserID != userID {
				return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
			}
			if err := s.tokens.RevokeRefresh(ctx, claims); err != nil {
				s.logger.Warn("failed to revoke refresh token on logout", zap.Error(err))
			} else {
				s.metrics.RecordRevocation("refresh")
			}
		}
	}

	if sessionID != "" {
		if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
			s.logger.Warn("failed to delete session on logout", zap.Error(err))
		}
	}

	s.audit(ctx, &userID, models.AuditActionLogout, meta, map[string]interface{}{"session_id": sessionID})
	return nil
}

// RevokeAll destroys every session and refresh token for the user and
// denylists the presented access token.
func (s *AuthService) RevokeAll(ctx context.Context, userID, accessToken string, meta models.LoginRequest) (*models.RevokeAllResult, error) {
	result, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		s.logger.Warn("failed to revoke current access token", zap.Error(err))
	}
	s.metrics.RecordRevocation("bulk")

	s.audit(ctx, &userID, models.AuditActionRevokeAll, meta, map[string]interface{}{
		"revoked_sessions":       result.RevokedSessions,
		"revoked_refresh_tokens": result.RevokedRefreshTokens,
	})
	return &result, nil
}

// ChangePassword verifies the old password, stores the new hash and revokes
// every outstanding session and refresh token for the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", zap.Error(err))
	}

	s.audit(ctx, &userID, models.AuditActionPasswordChange, models.LoginRequest{}, nil)
	return nil
}

// ListSessions returns the user's live sessions.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// failLogin is the single failure path for credential mismatches: record the
// failure, wait the fixed delay, audit, and return the generic error. The
// caller's reason never reaches the client.
func (s *AuthService) failLogin(ctx context.Context, req models.LoginRequest, user *models.User, reason string) error {
	if err := s.guard.RecordFailure(ctx, req.Email, req.IP); err != nil {
		s.logger.Warn("failed to record login failure", zap.Error(err))
	}
	s.metrics.RecordLogin(false)

	var userID *string
	if user != nil {
		userID = &user.ID
	}
	s.audit(ctx, userID, models.AuditActionLoginFailed, req, map[string]interface{}{
		"reason":     reason,
		"email_hash": security.HashIdentifier(req.Email),
	})

	if s.config.FailureDelay > 0 {
		s.sleep(s.config.FailureDelay)
	}
	return appErrors.ErrInvalidCredentials
}

func (s *AuthService) audit(ctx context.Context, userID *string, action string, meta models.LoginRequest, details map[string]interface{}) {
	payload, _ := json.Marshal(details)
	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Resource:  "auth",
		NewValues: payload,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if userID != nil {
		entry.ResourceID = userID
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
