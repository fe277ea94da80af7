package session

import (
	"errors"
	"log/slog"
	"time"

	"crm-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSession covers bad signatures and malformed tokens.
	// Callers must treat it identically to "no session".
	ErrInvalidSession = errors.New("invalid session token")
	// ErrSessionExpired is returned for structurally valid but expired tokens.
	ErrSessionExpired = errors.New("session expired")
)

// OnboardingStatus tracks where a user is in tenant onboarding.
type OnboardingStatus string

const (
	OnboardingCompleted OnboardingStatus = "completed"
	OnboardingPending   OnboardingStatus = "pending"
)

// StepCreateBusiness is the onboarding step for users without a tenant.
const StepCreateBusiness = "create_business"

// Claims is the signed session payload carried by the zcrm_session cookie.
// The browser holds it opaquely; the server only verifies, never stores it.
// Mutated only by the SSO callback (creation), the refresh path (token
// rotation), and logout (destruction).
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
	Email  string `json:"email"`

	// TenantID may be empty for users who have not completed onboarding.
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role"`

	// Upstream IdP tokens ride inside the session so the refresh path can
	// rotate them without a server-side session store.
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	AuthMode           config.AuthMode  `json:"auth_mode"`
	OnboardingStatus   OnboardingStatus `json:"onboarding_status"`
	OnboardingStep     string           `json:"onboarding_step,omitempty"`
	RequiresOnboarding bool             `json:"requires_onboarding"`
}

// Manager signs and verifies the session claims bundle with a symmetric
// secret (HS256). It never talks to the network or any store.
type Manager struct {
	secret   []byte
	duration time.Duration
}

func NewManager(cfg config.SessionConfig, log *slog.Logger) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.UsingFallbackSecret && log != nil {
		// Production startup is already blocked by config validation; this
		// warning is for every other environment where sessions are being
		// signed with a publicly known constant.
		log.Warn("SECURITY: signing sessions with the dev fallback secret; set SESSION_SECRET before deploying anywhere shared")
	}
	d := cfg.Duration
	if d <= 0 {
		d = 7 * 24 * time.Hour
	}
	return &Manager{secret: []byte(cfg.Secret), duration: d}, nil
}

// Duration is the configured session lifetime, also used for cookie Max-Age.
func (m *Manager) Duration() time.Duration { return m.duration }

// Sign stamps iat/exp from now and returns the signed session token.
func (m *Manager) Sign(now time.Time, c Claims) (string, error) {
	if c.UserID == "" {
		return "", errors.New("user_id is required")
	}
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(m.duration))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(m.secret)
}

// Verify checks the signature and expiry of a session token.
// Any failure means the caller has no session; expiry is distinguished so
// the refresh path can tell "stale" from "forged".
func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second), // clock skew tolerance
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrSessionExpired
		}
		return Claims{}, ErrInvalidSession
	}

	if claims.UserID == "" {
		return Claims{}, ErrInvalidSession
	}
	return claims, nil
}
