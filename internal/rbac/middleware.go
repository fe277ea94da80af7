package rbac

import (
	"net/http"

	"crm-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// RequirePermission allows the request only when the session role holds the
// given permission. Tenant isolation is enforced separately by internal/tenant.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := session.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !HasPermission(role, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAnyPermission allows the request when the role holds at least one
// of the permissions.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := session.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !HasAnyPermission(role, permissions...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAtLeastRole gates by hierarchy position, not permission sets.
func RequireAtLeastRole(minimum string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := session.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !IsAtLeastRole(role, minimum) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
