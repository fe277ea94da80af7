package proxy

import (
	"io"
	"net/http"

	"crm-platform/internal/tenant"
	"crm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxForwardBody = 1 << 20

// Forward relays a tenant-scoped API call to the CRM backend: same
// method and path, tenant and signature headers added. Must run after
// the tenant guard; the header it forwards is the validated one.
func Forward(client *Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tenant.ValidatedTenant(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant not validated"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxForwardBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}

		res, err := client.Do(c.Request.Context(), c.Request.Method, c.Request.URL.Path, tenantID, body)
		if err != nil {
			logger.FromGin(c).Error("backend call failed", "err", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
			return
		}
		defer res.Body.Close()

		payload, err := io.ReadAll(res.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "backend response truncated"})
			return
		}
		c.Data(res.StatusCode, res.Header.Get("Content-Type"), payload)
	}
}
