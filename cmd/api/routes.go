package main

import (
	"database/sql"
	"net/http"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/oauth"
	"crm-platform/internal/proxy"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/tenant"
	"crm-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Per-IP sign-in attempt limits.
const (
	loginAttemptLimit  = 20
	loginAttemptWindow = time.Minute
)

type routeDeps struct {
	db         *sql.DB
	rdb        *redis.Client
	sessions   *session.Manager
	auth       oauth.Handlers
	onboarding tenant.Onboarding
	tenants    tenant.Repository
	audit      *audit.Service
	backend    *proxy.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// SSO flow (public, rate limited per client IP)
	auth := r.Group("/auth")
	auth.Use(oauth.RateLimit(deps.rdb, loginAttemptLimit, loginAttemptWindow))
	{
		auth.GET("/login", deps.auth.Login)
		auth.GET("/callback", deps.auth.Callback)
		auth.POST("/refresh", deps.auth.Refresh)
		auth.POST("/logout", deps.auth.Logout)
	}

	// session-scoped API group
	v1 := r.Group("/v1")
	v1.Use(session.RequireSession(deps.sessions))
	{
		v1.GET("/auth/me", deps.auth.Me)

		// Onboarding runs before the user has a tenant, so it sits
		// outside the tenant guard.
		v1.POST("/onboarding/business", deps.onboarding.CreateBusiness)

		// tenant-scoped CRM surface, relayed to the backend
		if deps.backend != nil {
			crm := v1.Group("")
			crm.Use(tenant.RequireTenant(deps.tenants, deps.audit))
			forward := proxy.Forward(deps.backend)

			leads := crm.Group("/leads")
			{
				leads.GET("", rbac.RequirePermission(rbac.PermLeadView), forward)
				leads.POST("", rbac.RequirePermission(rbac.PermLeadCreate), forward)
				leads.PUT("/:lead_id", rbac.RequirePermission(rbac.PermLeadEdit), forward)
				leads.DELETE("/:lead_id", rbac.RequirePermission(rbac.PermLeadDelete), forward)
			}

			customers := crm.Group("/customers")
			{
				customers.GET("", rbac.RequirePermission(rbac.PermCustomerView), forward)
				customers.PUT("/:customer_id", rbac.RequirePermission(rbac.PermCustomerEdit), forward)
			}

			reports := crm.Group("/reports")
			reports.Use(rbac.RequireAtLeastRole(rbac.RoleManager))
			{
				reports.GET("", forward)
			}

			settings := crm.Group("/settings")
			settings.Use(rbac.RequirePermission(rbac.PermTenantSettings))
			{
				settings.GET("", forward)
				settings.PUT("", forward)
			}
		}
	}
}
