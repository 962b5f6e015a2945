package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

func tenantPtr(id string) *string { return &id }

func TestEnsureTenantAccess(t *testing.T) {
	tests := []struct {
		name      string
		principal *Principal
		target    string
		wantErr   *appErrors.Error
	}{
		{
			name:      "nil principal",
			principal: nil,
			target:    "c1",
			wantErr:   appErrors.ErrUnauthorized,
		},
		{
			name:      "platform admin crosses tenants",
			principal: &Principal{UserID: "u1", Role: models.RolePlatformAdmin, IsPlatformAdmin: true},
			target:    "c1",
		},
		{
			name:      "matching tenant",
			principal: &Principal{UserID: "u1", Role: models.RoleRecruiter, TenantID: tenantPtr("c1")},
			target:    "c1",
		},
		{
			name:      "no tenant bound",
			principal: &Principal{UserID: "u1", Role: models.RoleCandidate},
			target:    "c1",
			wantErr:   appErrors.ErrTenantRequired,
		},
		{
			name:      "foreign tenant",
			principal: &Principal{UserID: "u1", Role: models.RoleRecruiter, TenantID: tenantPtr("c2")},
			target:    "c1",
			wantErr:   appErrors.ErrTenantMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureTenantAccess(tt.principal, tt.target)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScopeQuery(t *testing.T) {
	admin := &Principal{UserID: "u1", Role: models.RolePlatformAdmin, IsPlatformAdmin: true}
	scope := ScopeQuery(admin)
	assert.True(t, scope.All)
	assert.False(t, scope.Empty)

	member := &Principal{UserID: "u2", Role: models.RoleRecruiter, TenantID: tenantPtr("c1")}
	scope = ScopeQuery(member)
	assert.False(t, scope.All)
	assert.False(t, scope.Empty)
	assert.Equal(t, "c1", *scope.TenantID)

	// An unbound principal sees an empty result set, not an error.
	unbound := &Principal{UserID: "u3", Role: models.RoleCandidate}
	scope = ScopeQuery(unbound)
	assert.True(t, scope.Empty)
	assert.False(t, scope.All)
	assert.Nil(t, scope.TenantID)

	scope = ScopeQuery(nil)
	assert.True(t, scope.Empty)
}
