package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/scout-hq/scout-api/internal/middleware"
	"github.com/scout-hq/scout-api/internal/tenant"
)

// principalFromContext returns the Principal set by the auth middleware, or
// false when the request is anonymous.
func principalFromContext(c *gin.Context) (*tenant.Principal, bool) {
	value, ok := c.Get(middleware.ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*tenant.Principal)
	return principal, ok
}

// tokenFromContext returns the raw bearer token stored by the auth
// middleware.
func tokenFromContext(c *gin.Context) string {
	value, ok := c.Get(middleware.ContextTokenKey)
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return token
}
