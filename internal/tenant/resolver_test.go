package tenant

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	"github.com/scout-hq/scout-api/internal/security"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

type stubUserLoader struct {
	user *models.User
	err  error
}

func (s *stubUserLoader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

type stubPlanLoader struct {
	plan  *models.Plan
	err   error
	calls int
}

func (s *stubPlanLoader) GetActivePlan(ctx context.Context, companyID string) (*models.Plan, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.plan, nil
}

func newResolver(t *testing.T, users *stubUserLoader, plans *stubPlanLoader) (*Resolver, *security.TokenService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := security.NewTokenService(client, zap.NewNop(), security.TokenConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	return NewResolver(tokens, users, plans, client, zap.NewNop()), tokens
}

func TestResolveBuildsPrincipal(t *testing.T) {
	company := "c1"
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleRecruiter, CompanyID: &company, Active: true}
	resolver, tokens := newResolver(t, &stubUserLoader{user: user}, &stubPlanLoader{})

	token, _, err := tokens.IssueAccessToken(user, 0)
	require.NoError(t, err)

	principal, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, "c1", *principal.TenantID)
	assert.False(t, principal.IsPlatformAdmin)
}

func TestResolvePlatformAdmin(t *testing.T) {
	user := &models.User{ID: "admin", Email: "root@example.com", Role: models.RolePlatformAdmin, Active: true}
	resolver, tokens := newResolver(t, &stubUserLoader{user: user}, &stubPlanLoader{})

	token, _, err := tokens.IssueAccessToken(user, 0)
	require.NoError(t, err)

	principal, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, principal.IsPlatformAdmin)
	assert.Nil(t, principal.TenantID)
}

func TestResolveDeletedSubject(t *testing.T) {
	user := &models.User{ID: "u1", Role: models.RoleRecruiter, Active: true}
	resolver, tokens := newResolver(t, &stubUserLoader{err: sql.ErrNoRows}, &stubPlanLoader{})

	token, _, err := tokens.IssueAccessToken(user, 0)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestResolveInactiveUser(t *testing.T) {
	user := &models.User{ID: "u1", Role: models.RoleRecruiter, Active: false}
	resolver, tokens := newResolver(t, &stubUserLoader{user: user}, &stubPlanLoader{})

	token, _, err := tokens.IssueAccessToken(user, 0)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestCheckSubscriptionLimit(t *testing.T) {
	plan := &models.Plan{ID: "p1", Name: "starter", MaxJobs: 3, MaxCandidates: 0, ExpiresAt: time.Now().Add(24 * time.Hour)}
	plans := &stubPlanLoader{plan: plan}
	resolver, _ := newResolver(t, &stubUserLoader{}, plans)
	ctx := context.Background()

	member := &Principal{UserID: "u1", Role: models.RoleCompanyAdmin, TenantID: tenantPtr("c1")}

	assert.NoError(t, resolver.CheckSubscriptionLimit(ctx, member, models.ResourceJobs, 2))

	err := resolver.CheckSubscriptionLimit(ctx, member, models.ResourceJobs, 3)
	assert.ErrorIs(t, err, appErrors.ErrPaymentRequired)

	// Zero limit means unlimited.
	assert.NoError(t, resolver.CheckSubscriptionLimit(ctx, member, models.ResourceCandidates, 100000))

	err = resolver.CheckSubscriptionLimit(ctx, member, "widgets", 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCheckSubscriptionLimitAdminBypass(t *testing.T) {
	plans := &stubPlanLoader{err: sql.ErrNoRows}
	resolver, _ := newResolver(t, &stubUserLoader{}, plans)

	admin := &Principal{UserID: "root", Role: models.RolePlatformAdmin, IsPlatformAdmin: true}
	assert.NoError(t, resolver.CheckSubscriptionLimit(context.Background(), admin, models.ResourceJobs, 1<<30))
	assert.Zero(t, plans.calls)
}

func TestCheckSubscriptionLimitNoActivePlan(t *testing.T) {
	plans := &stubPlanLoader{err: sql.ErrNoRows}
	resolver, _ := newResolver(t, &stubUserLoader{}, plans)

	member := &Principal{UserID: "u1", Role: models.RoleCompanyAdmin, TenantID: tenantPtr("c1")}
	err := resolver.CheckSubscriptionLimit(context.Background(), member, models.ResourceJobs, 0)
	assert.ErrorIs(t, err, appErrors.ErrPaymentRequired)
}

func TestCheckSubscriptionLimitTenantRequired(t *testing.T) {
	resolver, _ := newResolver(t, &stubUserLoader{}, &stubPlanLoader{})

	unbound := &Principal{UserID: "u1", Role: models.RoleCandidate}
	err := resolver.CheckSubscriptionLimit(context.Background(), unbound, models.ResourceJobs, 0)
	assert.ErrorIs(t, err, appErrors.ErrTenantRequired)
}

func TestCheckFeatureAccess(t *testing.T) {
	plan := &models.Plan{ID: "p1", Features: []string{"assessments"}, ExpiresAt: time.Now().Add(24 * time.Hour)}
	resolver, _ := newResolver(t, &stubUserLoader{}, &stubPlanLoader{plan: plan})
	ctx := context.Background()

	member := &Principal{UserID: "u1", Role: models.RoleRecruiter, TenantID: tenantPtr("c1")}

	assert.NoError(t, resolver.CheckFeatureAccess(ctx, member, "assessments"))
	assert.ErrorIs(t, resolver.CheckFeatureAccess(ctx, member, "video_interviews"), appErrors.ErrPaymentRequired)
}

func TestPlanLookupsAreCached(t *testing.T) {
	plan := &models.Plan{ID: "p1", MaxJobs: 5, ExpiresAt: time.Now().Add(24 * time.Hour)}
	plans := &stubPlanLoader{plan: plan}
	resolver, _ := newResolver(t, &stubUserLoader{}, plans)
	ctx := context.Background()

	member := &Principal{UserID: "u1", Role: models.RoleCompanyAdmin, TenantID: tenantPtr("c1")}

	require.NoError(t, resolver.CheckSubscriptionLimit(ctx, member, models.ResourceJobs, 0))
	require.NoError(t, resolver.CheckSubscriptionLimit(ctx, member, models.ResourceJobs, 0))
	assert.Equal(t, 1, plans.calls)
}
