package tenant

import (
	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

// Principal is the resolved identity-and-authorization context for one
// request. It is built fresh per request and never shared across requests;
// there is deliberately no process-wide tenant state.
type Principal struct {
	UserID          string          `json:"user_id"`
	Email           string          `json:"email"`
	Role            models.UserRole `json:"role"`
	TenantID        *string         `json:"tenant_id,omitempty"`
	IsPlatformAdmin bool            `json:"is_platform_admin"`
}

// QueryScope restricts a tenant-scoped list query. Exactly one of the three
// shapes applies: everything (platform admin), one tenant, or nothing.
type QueryScope struct {
	All      bool
	TenantID *string
	Empty    bool
}

// EnsureTenantAccess gates direct-object access to a tenant's data. Platform
// admins pass; principals without a tenant, or bound to a different tenant,
// are rejected loudly.
func EnsureTenantAccess(p *Principal, targetTenantID string) error {
	if p == nil {
		return appErrors.ErrUnauthorized
	}
	if p.IsPlatformAdmin {
		return nil
	}
	if p.TenantID == nil {
		return appErrors.ErrTenantRequired
	}
	if *p.TenantID != targetTenantID {
		return appErrors.ErrTenantMismatch
	}
	return nil
}

// ScopeQuery restricts list queries. Unlike EnsureTenantAccess this never
// fails: a principal with no tenant and no admin flag simply sees nothing,
// which is the intended behavior for list endpoints.
func ScopeQuery(p *Principal) QueryScope {
	if p == nil {
		return QueryScope{Empty: true}
	}
	if p.IsPlatformAdmin {
		return QueryScope{All: true}
	}
	if p.TenantID != nil {
		return QueryScope{TenantID: p.TenantID}
	}
	return QueryScope{Empty: true}
}
