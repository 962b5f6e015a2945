package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded by the auth core.
const (
	AuditActionLogin          = "auth.login"
	AuditActionLoginFailed    = "auth.login_failed"
	AuditActionLockout        = "auth.lockout"
	AuditActionLogout         = "auth.logout"
	AuditActionRefresh        = "auth.refresh"
	AuditActionPasswordChange = "auth.password_change"
	AuditActionRevokeAll      = "auth.revoke_all"
	AuditActionSessionsViewed = "auth.sessions_viewed"
)

// AuditLog is one immutable security-trail entry.
type AuditLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  json.RawMessage `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string          `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
