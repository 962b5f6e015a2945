package models

import "time"

// UserRole is the closed set of roles known to the platform. Role checks
// switch on this type instead of comparing raw strings.
type UserRole string

const (
	RolePlatformAdmin UserRole = "PLATFORM_ADMIN"
	RoleCompanyAdmin  UserRole = "COMPANY_ADMIN"
	RoleRecruiter     UserRole = "RECRUITER"
	RoleCandidate     UserRole = "CANDIDATE"
)

// Valid reports whether the role is one of the known variants.
func (r UserRole) Valid() bool {
	switch r {
	case RolePlatformAdmin, RoleCompanyAdmin, RoleRecruiter, RoleCandidate:
		return true
	}
	return false
}

// IsPlatformAdmin reports whether the role grants cross-tenant access.
func (r UserRole) IsPlatformAdmin() bool {
	return r == RolePlatformAdmin
}

// User represents an application user stored in the users table. CompanyID
// is nil for platform admins and for users not yet attached to a tenant.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	CompanyID    *string    `db:"company_id" json:"company_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LockedUntil  *time.Time `db:"locked_until" json:"locked_until,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	LoginCount   int        `db:"login_count" json:"login_count"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserInfo is the public projection returned by auth endpoints.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	Role      UserRole `json:"role"`
	CompanyID *string  `json:"company_id,omitempty"`
}
