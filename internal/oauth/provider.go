package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"crm-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Provider drives the authorization-code handshake against the identity
// provider. Endpoint paths are derived from the issuer base URL.
type Provider struct {
	oauth    oauth2.Config
	revoke   string
	userinfo string
	usePKCE  bool
}

func NewProvider(cfg config.OAuthConfig) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	base := strings.TrimRight(cfg.IssuerURL, "/")
	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth/authorize",
				TokenURL: base + "/oauth/token",
			},
		},
		revoke:   base + "/oauth/revoke",
		userinfo: base + "/oauth/userinfo",
		usePKCE:  cfg.UsePKCE,
	}, nil
}

// UsesPKCE reports whether authorization requests carry a code challenge.
func (p *Provider) UsesPKCE() bool { return p.usePKCE }

// NewVerifier returns a fresh PKCE code verifier, or "" when PKCE is off.
func (p *Provider) NewVerifier() string {
	if !p.usePKCE {
		return ""
	}
	return oauth2.GenerateVerifier()
}

// AuthorizeURL builds the authorization redirect for the given CSRF state.
// With PKCE enabled, the S256 challenge derived from verifier is included.
func (p *Provider) AuthorizeURL(state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	if p.usePKCE && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// Exchange redeems the authorization code. Failure is fatal to the attempt;
// there is no retry.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if p.usePKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return tok, nil
}

// Refresh redeems a refresh token for a new token pair.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return tok, nil
}

// Revoke invalidates a token upstream. Best-effort: logout proceeds even
// when the provider is unreachable.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}, "client_id": {p.oauth.ClientID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revoke, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.oauth.ClientID, p.oauth.ClientSecret)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("revoke returned %d", res.StatusCode)
	}
	return nil
}

// IdentityClaims is the read-only view of the IdP access-token payload.
type IdentityClaims struct {
	Subject  string
	Email    string
	TenantID string
	Role     string
	// ExpiresAt is epoch seconds from the IdP token's exp claim.
	ExpiresAt int64
}

type idpPayload struct {
	jwt.RegisteredClaims

	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// DecodeIdentity reads the IdP access-token payload WITHOUT verifying its
// signature. This is display/derivation input only: the trust boundary is
// the locally signed session cookie, never the upstream token taken at
// face value.
func DecodeIdentity(accessToken string) (IdentityClaims, error) {
	var payload idpPayload
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &payload); err != nil {
		return IdentityClaims{}, fmt.Errorf("decode identity claims: %w", err)
	}
	if payload.Subject == "" {
		return IdentityClaims{}, errors.New("identity token has no subject")
	}
	out := IdentityClaims{
		Subject:  payload.Subject,
		Email:    payload.Email,
		TenantID: payload.TenantID,
		Role:     payload.Role,
	}
	if payload.ExpiresAt != nil {
		out.ExpiresAt = payload.ExpiresAt.Unix()
	}
	return out, nil
}
