package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scout-hq/scout-api/internal/tenant"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
	"github.com/scout-hq/scout-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the resolved Principal.
const ContextPrincipalKey = "currentPrincipal"

// ContextTokenKey stores the raw bearer token for handlers that need to
// revoke it (logout, revoke-all).
const ContextTokenKey = "currentToken"

// RequireAuth protects routes by resolving the bearer token into a Principal
// once per request. Downstream handlers read the Principal from the context;
// nothing about the caller's identity is process-global.
func RequireAuth(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// OptionalAuth attaches a Principal when a valid token is present but does
// not block anonymous requests.
func OptionalAuth(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// RequirePlatformAdmin allows only platform administrators through. Must run
// after RequireAuth.
func RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextPrincipalKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		principal := value.(*tenant.Principal)
		if !principal.IsPlatformAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
