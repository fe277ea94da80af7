package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the verified session claims.
const ClaimsKey = "session_claims"

// RequireSession verifies the session cookie and injects identity into the
// request context. It does not perform RBAC or tenant checks; those belong
// to internal/rbac and internal/tenant.
func RequireSession(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ReadCookie(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}

		claims, err := m.Verify(raw, time.Now())
		if err != nil {
			// Signature failure and expiry are both "no session" here; the
			// refresh loop handles expiry before requests normally get this far.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Email, claims.TenantID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set(ClaimsKey, claims)
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// ClaimsFromGin pulls the verified claims set by RequireSession.
func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
