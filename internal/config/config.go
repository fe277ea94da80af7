package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Session SessionConfig
	OAuth   OAuthConfig
	Backend BackendConfig
	Refresh RefreshConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// AuthMode selects how sessions originate.
// Accepts: sso, hybrid, legacy
type AuthMode string

const (
	AuthModeSSO    AuthMode = "sso"
	AuthModeHybrid AuthMode = "hybrid"
	AuthModeLegacy AuthMode = "legacy"
)

// DevFallbackSessionSecret is the last-resort signing secret for local work.
// Sessions signed with it are worthless outside a developer laptop; Validate
// refuses to start a production process that would use it.
const DevFallbackSessionSecret = "zcrm-dev-session-secret-do-not-ship"

type SessionConfig struct {
	// Secret signs the session cookie. Resolution order:
	// SESSION_SECRET -> PLATFORM_SESSION_SECRET -> DevFallbackSessionSecret.
	Secret string

	// UsingFallbackSecret is set by Load when no secret was configured.
	UsingFallbackSecret bool

	Duration time.Duration
	Mode     AuthMode

	// ProxySecret signs service-to-service calls (x-crm-signature).
	ProxySecret string
}

type OAuthConfig struct {
	// IssuerURL is the identity provider base URL. Endpoint paths
	// (/oauth/authorize, /oauth/token, ...) are derived from it.
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// UsePKCE adds a S256 code challenge to the authorization request.
	UsePKCE bool

	// StateTTL bounds how long an issued authorization state is redeemable.
	StateTTL time.Duration
}

type BackendConfig struct {
	// BaseURL of the CRM backend the API proxies signed calls to.
	// Optional: the proxy client is disabled when unset.
	BaseURL string

	// ServiceRefreshToken bootstraps the service-account token used for
	// server-to-server calls. Required only when BaseURL is set.
	ServiceRefreshToken string
}

type RefreshConfig struct {
	// Interval between periodic session checks.
	Interval time.Duration
	// MinInterval is the success throttle: no two checks begin closer than this.
	MinInterval time.Duration
	// InitialDelay postpones the very first check after startup so a
	// freshly minted session is not immediately re-validated.
	InitialDelay time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Session.Secret, c.Session.UsingFallbackSecret = resolveSessionSecret()
	c.Session.Duration = mustDuration("SESSION_DURATION")
	c.Session.Mode = AuthMode(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	c.Session.ProxySecret = os.Getenv("CRM_PROXY_SECRET")

	c.OAuth.IssuerURL = strings.TrimRight(strings.TrimSpace(os.Getenv("OAUTH_ISSUER_URL")), "/")
	c.OAuth.ClientID = strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID"))
	c.OAuth.ClientSecret = os.Getenv("OAUTH_CLIENT_SECRET")
	c.OAuth.RedirectURI = strings.TrimSpace(os.Getenv("OAUTH_REDIRECT_URI"))
	c.OAuth.Scopes = splitScopes(os.Getenv("OAUTH_SCOPES"))
	c.OAuth.UsePKCE = boolEnv("OAUTH_USE_PKCE")
	c.OAuth.StateTTL = mustDuration("OAUTH_STATE_TTL")

	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CRM_BACKEND_URL")), "/")
	c.Backend.ServiceRefreshToken = os.Getenv("CRM_SERVICE_REFRESH_TOKEN")

	c.Refresh.Interval = mustDuration("REFRESH_INTERVAL")
	c.Refresh.MinInterval = mustDuration("REFRESH_MIN_INTERVAL")
	c.Refresh.InitialDelay = mustDuration("REFRESH_INITIAL_DELAY")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// resolveSessionSecret applies the documented resolution order.
func resolveSessionSecret() (string, bool) {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return s, false
	}
	if s := os.Getenv("PLATFORM_SESSION_SECRET"); s != "" {
		return s, false
	}
	return DevFallbackSessionSecret, true
}

func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local|dev|staging|production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, errors.New("APP_PORT must be a valid TCP port"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable|require|verify-ca|verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}

	// Shipping the dev fallback secret to production is a hard failure,
	// not a warning. Refusing to start beats signing real sessions with a
	// public constant.
	if c.IsProduction() && c.Session.UsingFallbackSecret {
		errs = append(errs, errors.New("SESSION_SECRET (or PLATFORM_SESSION_SECRET) is required in production; refusing to use the dev fallback"))
	}
	if c.Session.Duration <= 0 {
		c.Session.Duration = 7 * 24 * time.Hour
	}
	if c.Session.Mode == "" {
		c.Session.Mode = AuthModeSSO
	}
	if !isValidAuthMode(c.Session.Mode) {
		errs = append(errs, fmt.Errorf("AUTH_MODE must be one of sso|hybrid|legacy, got %q", c.Session.Mode))
	}
	if c.IsProduction() && c.Session.ProxySecret == "" {
		errs = append(errs, errors.New("CRM_PROXY_SECRET is required in production"))
	}

	if c.Session.Mode != AuthModeLegacy {
		if c.OAuth.IssuerURL == "" {
			errs = append(errs, errors.New("OAUTH_ISSUER_URL is required unless AUTH_MODE=legacy"))
		} else if u, err := url.Parse(c.OAuth.IssuerURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("OAUTH_ISSUER_URL must be an absolute URL, got %q", c.OAuth.IssuerURL))
		}
		if c.OAuth.ClientID == "" {
			errs = append(errs, errors.New("OAUTH_CLIENT_ID is required unless AUTH_MODE=legacy"))
		}
		if c.OAuth.ClientSecret == "" {
			errs = append(errs, errors.New("OAUTH_CLIENT_SECRET is required unless AUTH_MODE=legacy"))
		}
		if c.OAuth.RedirectURI == "" {
			errs = append(errs, errors.New("OAUTH_REDIRECT_URI is required unless AUTH_MODE=legacy"))
		}
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = []string{"openid", "profile", "email"}
	}
	if c.OAuth.StateTTL <= 0 {
		c.OAuth.StateTTL = 5 * time.Minute
	}

	if c.Backend.BaseURL != "" {
		if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CRM_BACKEND_URL must be an absolute URL, got %q", c.Backend.BaseURL))
		}
		if c.Backend.ServiceRefreshToken == "" {
			errs = append(errs, errors.New("CRM_SERVICE_REFRESH_TOKEN is required when CRM_BACKEND_URL is set"))
		}
		if c.Session.ProxySecret == "" {
			errs = append(errs, errors.New("CRM_PROXY_SECRET is required when CRM_BACKEND_URL is set"))
		}
	}

	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = 2 * time.Minute
	}
	if c.Refresh.MinInterval <= 0 {
		c.Refresh.MinInterval = 30 * time.Second
	}
	if c.Refresh.InitialDelay <= 0 {
		c.Refresh.InitialDelay = 5 * time.Second
	}
	if c.Refresh.MinInterval >= c.Refresh.Interval {
		errs = append(errs, errors.New("REFRESH_MIN_INTERVAL must be less than REFRESH_INTERVAL"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func splitScopes(raw string) []string {
	var out []string
	for _, s := range strings.Fields(raw) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidAuthMode(v AuthMode) bool {
	switch v {
	case AuthModeSSO, AuthModeHybrid, AuthModeLegacy:
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:")
	for _, e := range errs {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
