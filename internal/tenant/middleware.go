package tenant

import (
	"context"
	"errors"
	"net/http"

	"crm-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// Auditor records tenant access denials. Optional; nil disables auditing.
type Auditor interface {
	LogTenantDenied(ctx context.Context, tenantID, userID, ip, code string) error
}

// HeaderTenantID carries the validated tenant id on every proxied request
// to tenant-scoped backends. Building this header without passing
// RequireTenant is a programming error, not a runtime fallback.
const HeaderTenantID = "x-tenant-id"

// ValidatedTenantKey is the gin context key for the validated tenant id.
const ValidatedTenantKey = "validated_tenant_id"

// RequireTenant enforces tenant isolation for the request.
//
// The selected tenant is the x-tenant-id request header when present
// (clients operating on an explicit tenant), otherwise the session's own
// tenant. Checks run in the guard's fixed order and the validated id is
// stamped back onto the request for downstream proxying.
func RequireTenant(repo Repository, auditor Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := session.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		sessionTenant, _ := session.TenantID(c.Request.Context())

		selectedID := c.GetHeader(HeaderTenantID)
		if selectedID == "" {
			selectedID = sessionTenant
		}

		deny := func(code Code) {
			// Denials against a concrete tenant leave an audit trail;
			// malformed requests do not.
			if auditor != nil && (code == CodeAccessDenied || code == CodeTenantInactive) {
				_ = auditor.LogTenantDenied(c.Request.Context(), selectedID, userID, c.ClientIP(), string(code))
			}
			abortTenant(c, code)
		}

		// Ordered pre-checks that do not need the repository.
		if selectedID == "" {
			deny(CodeNoTenant)
			return
		}
		if !IsValidTenantID(selectedID) {
			deny(CodeInvalidTenant)
			return
		}
		if sessionTenant != selectedID {
			deny(CodeAccessDenied)
			return
		}

		m, err := repo.GetMembership(c.Request.Context(), userID, selectedID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				deny(CodeAccessDenied)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
			return
		}

		v := ValidateTenantContext(&m, sessionTenant)
		if !v.IsValid {
			deny(v.Code)
			return
		}

		// The only place the proxy header may be set.
		c.Request.Header.Set(HeaderTenantID, v.TenantID)
		c.Set(ValidatedTenantKey, v.TenantID)
		c.Next()
	}
}

func abortTenant(c *gin.Context, code Code) {
	status := http.StatusForbidden
	switch code {
	case CodeNoTenant, CodeInvalidTenant:
		status = http.StatusBadRequest
	}
	e := newError(code, "tenant validation failed")
	c.AbortWithStatusJSON(status, gin.H{"error": e.UserMessage(), "code": string(code)})
}

// ValidatedTenant returns the tenant id stamped by RequireTenant.
func ValidatedTenant(c *gin.Context) (string, bool) {
	v, ok := c.Get(ValidatedTenantKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
