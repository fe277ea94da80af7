package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName is the session cookie. The value is the signed claims bundle.
const CookieName = "zcrm_session"

// SetCookie writes the session cookie.
// HttpOnly always; Secure only in production so local HTTP still works.
func SetCookie(c *gin.Context, token string, maxAge time.Duration, production bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(maxAge.Seconds()), "/", "", production, true)
}

// ClearCookie expires the session cookie immediately.
func ClearCookie(c *gin.Context, production bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", production, true)
}

// ReadCookie returns the raw session token, or "" when absent.
func ReadCookie(c *gin.Context) string {
	v, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return v
}
