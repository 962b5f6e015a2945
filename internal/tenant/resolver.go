package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	"github.com/scout-hq/scout-api/internal/security"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

const planCacheKeyPrefix = "plan:"

// UserLoader loads the user row backing a token subject.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// PlanLoader returns the tenant's active plan, or sql.ErrNoRows when none.
type PlanLoader interface {
	GetActivePlan(ctx context.Context, companyID string) (*models.Plan, error)
}

// Resolver turns a bearer token into a Principal and answers subscription
// questions for the principal's tenant. Plans are cached briefly in Redis to
// keep the limit checks off the database on hot paths.
type Resolver struct {
	tokens   *security.TokenService
	users    UserLoader
	plans    PlanLoader
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewResolver constructs a Resolver. The cache client may be nil, in which
// case every plan lookup hits the loader.
func NewResolver(tokens *security.TokenService, users UserLoader, plans PlanLoader, cache *redis.Client, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tokens: tokens, users: users, plans: plans, cache: cache, cacheTTL: 5 * time.Minute, logger: logger}
}

// Resolve verifies the token, loads the owning user and derives the
// Principal. Called once per request by the auth middleware; the result
// lives in the request context only.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := r.tokens.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := r.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	return &Principal{
		UserID:          user.ID,
		Email:           user.Email,
		Role:            user.Role,
		TenantID:        user.CompanyID,
		IsPlatformAdmin: user.Role.IsPlatformAdmin(),
	}, nil
}

// CheckSubscriptionLimit verifies the principal's tenant may hold one more
// of the resource kind. Platform admins bypass the check; a tenant without
// an active plan fails with PaymentRequired.
func (r *Resolver) CheckSubscriptionLimit(ctx context.Context, p *Principal, resourceKind string, currentCount int) error {
	if p != nil && p.IsPlatformAdmin {
		return nil
	}
	plan, err := r.activePlan(ctx, p)
	if err != nil {
		return err
	}

	limit, known := plan.LimitFor(resourceKind)
	if !known {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown resource kind %q", resourceKind))
	}
	if limit == 0 {
		return nil
	}
	if currentCount >= limit {
		return appErrors.Clone(appErrors.ErrPaymentRequired, fmt.Sprintf("subscription limit reached for %s", resourceKind))
	}
	return nil
}

// CheckFeatureAccess verifies the principal's tenant plan enables a feature.
func (r *Resolver) CheckFeatureAccess(ctx context.Context, p *Principal, feature string) error {
	if p != nil && p.IsPlatformAdmin {
		return nil
	}
	plan, err := r.activePlan(ctx, p)
	if err != nil {
		return err
	}
	if !plan.HasFeature(feature) {
		return appErrors.Clone(appErrors.ErrPaymentRequired, fmt.Sprintf("feature %q is not included in the current plan", feature))
	}
	return nil
}

func (r *Resolver) activePlan(ctx context.Context, p *Principal) (*models.Plan, error) {
	if p == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if p.TenantID == nil {
		return nil, appErrors.ErrTenantRequired
	}
	companyID := *p.TenantID

	if plan, ok := r.cachedPlan(ctx, companyID); ok {
		return plan, nil
	}

	plan, err := r.plans.GetActivePlan(ctx, companyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPaymentRequired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription plan")
	}

	r.storePlan(ctx, companyID, plan)
	return plan, nil
}

func (r *Resolver) cachedPlan(ctx context.Context, companyID string) (*models.Plan, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, planCacheKeyPrefix+companyID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("plan cache read failed", zap.String("company_id", companyID), zap.Error(err))
		}
		return nil, false
	}
	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	return &plan, true
}

func (r *Resolver) storePlan(ctx context.Context, companyID string, plan *models.Plan) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, planCacheKeyPrefix+companyID, payload, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("plan cache write failed", zap.String("company_id", companyID), zap.Error(err))
	}
}
