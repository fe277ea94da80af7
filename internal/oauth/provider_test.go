package oauth

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"crm-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

func testProviderConfig(issuer string, pkce bool) config.OAuthConfig {
	return config.OAuthConfig{
		IssuerURL:    issuer,
		ClientID:     "crm-web",
		ClientSecret: "s3cret",
		RedirectURI:  "https://crm.example.com/auth/callback",
		Scopes:       []string{"openid", "email"},
		UsePKCE:      pkce,
	}
}

func TestAuthorizeURL(t *testing.T) {
	p, err := NewProvider(testProviderConfig("https://id.example.com/", false))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	raw := p.AuthorizeURL("state-123", "")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/oauth/authorize" {
		t.Fatalf("expected /oauth/authorize, got %s", u.Path)
	}
	q := u.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != "crm-web" || q.Get("state") != "state-123" {
		t.Fatalf("unexpected query: %v", q)
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Fatalf("expected scopes in query, got %q", q.Get("scope"))
	}
	if q.Get("code_challenge") != "" {
		t.Fatalf("PKCE disabled but challenge present")
	}
}

func TestAuthorizeURL_PKCE(t *testing.T) {
	p, err := NewProvider(testProviderConfig("https://id.example.com", true))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	verifier := p.NewVerifier()
	if verifier == "" {
		t.Fatalf("expected a verifier with PKCE enabled")
	}

	u, _ := url.Parse(p.AuthorizeURL("s", verifier))
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" {
		t.Fatalf("expected S256 challenge method, got %q", q.Get("code_challenge_method"))
	}
	ch := q.Get("code_challenge")
	if ch == "" || ch == verifier {
		t.Fatalf("challenge must be derived, not the verifier itself")
	}
	if strings.ContainsAny(ch, "+/=") {
		t.Fatalf("challenge must be base64url without padding, got %q", ch)
	}
}

func TestNewVerifier_OffWithoutPKCE(t *testing.T) {
	p, _ := NewProvider(testProviderConfig("https://id.example.com", false))
	if p.NewVerifier() != "" {
		t.Fatalf("expected empty verifier with PKCE disabled")
	}
}

func TestNewProvider_RequiresIssuer(t *testing.T) {
	if _, err := NewProvider(config.OAuthConfig{}); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

// idpToken builds a signed-but-untrusted IdP token; DecodeIdentity must read
// it without caring about the key.
func idpToken(t *testing.T, sub, email, tenantID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if tenantID != "" {
		claims["tenant_id"] = tenantID
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-idp-key"))
	if err != nil {
		t.Fatalf("sign idp token: %v", err)
	}
	return tok
}

func TestDecodeIdentity(t *testing.T) {
	tok := idpToken(t, "user-9", "u@x.com", "550e8400-e29b-41d4-a716-446655440000", "admin")

	id, err := DecodeIdentity(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id.Subject != "user-9" || id.Email != "u@x.com" || id.Role != "admin" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.TenantID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Fatalf("unexpected tenant: %q", id.TenantID)
	}
	if id.ExpiresAt == 0 {
		t.Fatalf("expected exp claim")
	}
}

func TestDecodeIdentity_NoTenant(t *testing.T) {
	id, err := DecodeIdentity(idpToken(t, "user-9", "u@x.com", "", "viewer"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id.TenantID != "" {
		t.Fatalf("expected empty tenant, got %q", id.TenantID)
	}
}

func TestDecodeIdentity_Rejects(t *testing.T) {
	if _, err := DecodeIdentity("garbage"); err == nil {
		t.Fatalf("expected error for non-JWT input")
	}
}
