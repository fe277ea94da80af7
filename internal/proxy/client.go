// Package proxy is the server-to-server client for the CRM backend.
// Calls carry the validated tenant header, a service bearer token, and
// the HMAC signature headers the backend verifies.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"crm-platform/internal/session"
	"crm-platform/internal/signing"
)

// ErrNoServiceToken means the keep-alive has no live token; the caller
// should fail the request rather than send an unauthenticated one.
var ErrNoServiceToken = errors.New("no valid service token")

type Client struct {
	base   *url.URL
	http   *http.Client
	signer *signing.Signer
	tokens *session.TokenStore
}

func NewClient(baseURL string, signer *signing.Signer, tokens *session.TokenStore) (*Client, error) {
	if signer == nil || tokens == nil {
		return nil, errors.New("signer and token store are required")
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base URL must be absolute, got %q", baseURL)
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		signer: signer,
		tokens: tokens,
	}, nil
}

// Do sends a signed, tenant-scoped request to the backend. path must be
// root-relative; tenantID must already be validated by the tenant guard.
func (c *Client) Do(ctx context.Context, method, path, tenantID string, body []byte) (*http.Response, error) {
	token, ok := c.tokens.AccessToken()
	if !ok || c.tokens.IsExpired() {
		return nil, ErrNoServiceToken
	}

	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("x-tenant-id", tenantID)
	}
	c.signer.Sign(req, body)

	return c.http.Do(req)
}
