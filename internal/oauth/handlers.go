package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/config"
	"crm-platform/internal/session"
	"crm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Error tags surfaced on the login redirect. The login page maps them to
// localized copy; raw provider codes never reach users.
const (
	ErrTagAccessDenied   = "access_denied"
	ErrTagInvalidState   = "invalid_state"
	ErrTagExchangeFailed = "token_exchange_failed"
	ErrTagInvalidToken   = "invalid_token"
)

// DefaultDestination is where users land when no valid redirect was requested.
const DefaultDestination = "/dashboard"

// OnboardingDestination is forced for users without a tenant.
const OnboardingDestination = "/onboarding/create-business"

const loginPath = "/login"

// Handlers drives login, callback, refresh, and logout.
// Keep these thin: orchestration only, no business rules beyond the flow.
type Handlers struct {
	Provider *Provider
	States   StateStore
	Sessions *session.Manager
	Audit    *audit.Service

	AuthMode   config.AuthMode
	StateTTL   time.Duration
	Production bool
}

// Login issues the authorization redirect: fresh CSRF nonce, optional PKCE
// verifier, requested destination captured in the state parameter.
func (h Handlers) Login(c *gin.Context) {
	st := State{
		Nonce:        NewNonce(),
		CodeVerifier: h.Provider.NewVerifier(),
		RedirectTo:   c.Query("redirect"),
	}
	if err := h.States.Save(c.Request.Context(), st, h.StateTTL); err != nil {
		logger.FromGin(c).Error("state save failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not start sign-in"})
		return
	}
	c.Redirect(http.StatusFound, h.Provider.AuthorizeURL(EncodeStateParam(st), st.CodeVerifier))
}

// Callback finishes the exchange: provider error short-circuits first, then
// the CSRF state check, and only then the network call to the token endpoint.
func (h Handlers) Callback(c *gin.Context) {
	log := logger.FromGin(c)

	if errCode := c.Query("error"); errCode != "" {
		log.Warn("idp returned error", "code", errCode)
		h.auditLoginFailed(c, "provider error: "+errCode)
		h.redirectLoginError(c, mapProviderError(errCode))
		return
	}

	stateParam := c.Query("state")
	code := c.Query("code")
	if stateParam == "" || code == "" {
		h.redirectLoginError(c, ErrTagInvalidState)
		return
	}

	param, err := DecodeStateParam(stateParam)
	if err != nil {
		h.auditLoginFailed(c, "malformed state")
		h.redirectLoginError(c, ErrTagInvalidState)
		return
	}

	// Mandatory CSRF check: the returned nonce must match a live local
	// state. This aborts before any network call.
	st, err := h.States.Consume(c.Request.Context(), param.Nonce)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			log.Error("state consume failed", "err", err)
		}
		h.auditLoginFailed(c, "state mismatch")
		h.redirectLoginError(c, ErrTagInvalidState)
		return
	}

	tok, err := h.Provider.Exchange(c.Request.Context(), code, st.CodeVerifier)
	if err != nil {
		log.Error("token exchange failed", "err", err)
		h.auditLoginFailed(c, "token exchange failed")
		h.redirectLoginError(c, ErrTagExchangeFailed)
		return
	}

	id, err := DecodeIdentity(tok.AccessToken)
	if err != nil {
		log.Error("identity decode failed", "err", err)
		h.auditLoginFailed(c, "identity decode failed")
		h.redirectLoginError(c, ErrTagInvalidToken)
		return
	}

	requiresOnboarding := id.TenantID == ""
	claims := session.Claims{
		UserID:             id.Subject,
		Email:              id.Email,
		TenantID:           id.TenantID,
		Role:               id.Role,
		AccessToken:        tok.AccessToken,
		RefreshToken:       tok.RefreshToken,
		AuthMode:           h.AuthMode,
		OnboardingStatus:   session.OnboardingCompleted,
		RequiresOnboarding: requiresOnboarding,
	}
	if requiresOnboarding {
		claims.OnboardingStatus = session.OnboardingPending
		claims.OnboardingStep = session.StepCreateBusiness
	}

	signed, err := h.Sessions.Sign(time.Now(), claims)
	if err != nil {
		log.Error("session mint failed", "err", err)
		h.redirectLoginError(c, ErrTagExchangeFailed)
		return
	}
	session.SetCookie(c, signed, h.Sessions.Duration(), h.Production)

	if h.Audit != nil {
		_ = h.Audit.LogLogin(c.Request.Context(), id.TenantID, id.Subject, id.Email, c.ClientIP())
	}

	c.Redirect(http.StatusFound, ResolveDestination(st.RedirectTo, requiresOnboarding))
}

// Refresh rotates the upstream tokens inside the session and re-signs the
// bundle as a unit. Any failure is a 401; the client's refresh loop applies
// its own two-strike rule before declaring the session dead.
func (h Handlers) Refresh(c *gin.Context) {
	raw := session.ReadCookie(c)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	claims, err := h.Sessions.Verify(raw, time.Now())
	if err != nil {
		session.ClearCookie(c, h.Production)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	tok, err := h.Provider.Refresh(c.Request.Context(), claims.RefreshToken)
	if err != nil {
		logger.FromGin(c).Warn("upstream refresh failed", "err", err)
		if h.Audit != nil {
			_ = h.Audit.LogSessionExpired(c.Request.Context(), claims.TenantID, claims.UserID)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "refresh failed"})
		return
	}

	claims.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		claims.RefreshToken = tok.RefreshToken
	}

	signed, err := h.Sessions.Sign(time.Now(), claims)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session mint failed"})
		return
	}
	session.SetCookie(c, signed, h.Sessions.Duration(), h.Production)

	c.JSON(http.StatusOK, gin.H{
		"expires_at": time.Now().Add(h.Sessions.Duration()).Unix(),
	})
}

// Logout destroys the session and best-effort revokes the upstream token.
func (h Handlers) Logout(c *gin.Context) {
	raw := session.ReadCookie(c)
	if raw != "" {
		if claims, err := h.Sessions.Verify(raw, time.Now()); err == nil {
			if err := h.Provider.Revoke(c.Request.Context(), claims.AccessToken); err != nil {
				logger.FromGin(c).Warn("token revoke failed", "err", err)
			}
			if h.Audit != nil {
				_ = h.Audit.LogLogout(c.Request.Context(), claims.TenantID, claims.UserID, c.ClientIP())
			}
		}
	}
	session.ClearCookie(c, h.Production)
	c.JSON(http.StatusOK, gin.H{"redirect": loginPath})
}

// Me reports the current identity. This is the endpoint the refresh
// scheduler polls as its validity check.
func (h Handlers) Me(c *gin.Context) {
	claims, ok := session.ClaimsFromGin(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":             claims.UserID,
		"email":               claims.Email,
		"tenant_id":           claims.TenantID,
		"role":                claims.Role,
		"auth_mode":           claims.AuthMode,
		"onboarding_status":   claims.OnboardingStatus,
		"requires_onboarding": claims.RequiresOnboarding,
	})
}

// ResolveDestination picks the post-login landing path. A requested target
// is honored only when root-relative; absent tenant membership forces
// onboarding regardless of the request.
func ResolveDestination(requested string, requiresOnboarding bool) string {
	if requiresOnboarding {
		return OnboardingDestination
	}
	if isSafeRelative(requested) {
		return requested
	}
	return DefaultDestination
}

// isSafeRelative rejects anything that could leave the origin:
// absolute URLs, protocol-relative //host paths, and backslash tricks.
func isSafeRelative(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	return true
}

func (h Handlers) redirectLoginError(c *gin.Context, tag string) {
	c.Redirect(http.StatusFound, loginPath+"?error="+url.QueryEscape(tag))
}

func (h Handlers) auditLoginFailed(c *gin.Context, reason string) {
	if h.Audit != nil {
		_ = h.Audit.LogLoginFailed(c.Request.Context(), c.ClientIP(), reason)
	}
}

func mapProviderError(code string) string {
	switch code {
	case "access_denied":
		return ErrTagAccessDenied
	default:
		return ErrTagExchangeFailed
	}
}

// ErrorMessage maps a login error tag to display copy.
func ErrorMessage(tag string) string {
	switch tag {
	case ErrTagAccessDenied:
		return "Sign-in was cancelled."
	case ErrTagInvalidState:
		return "Your sign-in attempt expired. Please try again."
	case ErrTagExchangeFailed, ErrTagInvalidToken:
		return "We couldn't complete sign-in. Please try again."
	default:
		return "Sign-in failed. Please try again."
	}
}
