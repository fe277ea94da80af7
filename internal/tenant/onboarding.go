package tenant

import (
	"net/http"
	"strings"
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Onboarding completes the create-business step for users who signed in
// without a tenant. It provisions the tenant and upgrades the session in
// place, so the very next request is fully tenant-scoped.
type Onboarding struct {
	Tenants    Creator
	Sessions   *session.Manager
	Production bool
}

type createBusinessRequest struct {
	Name string `json:"name" binding:"required"`
}

func (o Onboarding) CreateBusiness(c *gin.Context) {
	claims, ok := session.ClaimsFromGin(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	if claims.TenantID != "" {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already a member of a business"})
		return
	}

	var req createBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "business name is required"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "business name is required"})
		return
	}

	tenantID, err := o.Tenants.CreateTenant(c.Request.Context(), name, claims.UserID)
	if err != nil {
		logger.FromGin(c).Error("tenant create failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not create business"})
		return
	}

	claims.TenantID = tenantID
	claims.Role = rbac.RoleOwner
	claims.OnboardingStatus = session.OnboardingCompleted
	claims.OnboardingStep = ""
	claims.RequiresOnboarding = false

	signed, err := o.Sessions.Sign(time.Now(), claims)
	if err != nil {
		logger.FromGin(c).Error("session mint failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not update session"})
		return
	}
	session.SetCookie(c, signed, o.Sessions.Duration(), o.Production)

	c.JSON(http.StatusCreated, gin.H{
		"tenant_id": tenantID,
		"redirect":  "/dashboard",
	})
}
