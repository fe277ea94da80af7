// Package signing implements the HMAC request signing used between the
// web tier and the CRM backend. Every proxied call carries
// x-crm-signature and x-crm-timestamp; the backend recomputes the
// digest over the same material and rejects stale or mismatched
// requests.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// HeaderSignature carries the lowercase hex HMAC-SHA256 digest.
	HeaderSignature = "x-crm-signature"
	// HeaderTimestamp carries the signing time as epoch seconds.
	HeaderTimestamp = "x-crm-timestamp"
)

// MaxSkew bounds how far a signed timestamp may drift from server time
// in either direction before the request is treated as a replay.
const MaxSkew = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrBadTimestamp     = errors.New("malformed signature timestamp")
	ErrStaleTimestamp   = errors.New("signature timestamp outside allowed window")
	ErrBadSignature     = errors.New("request signature mismatch")
)

// Signer signs and verifies proxied requests with a shared secret.
type Signer struct {
	secret []byte
	clock  func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &Signer{secret: []byte(secret), clock: time.Now}, nil
}

// payload is what both sides digest: timestamp, method, path, and body,
// dot-separated. Path excludes the query string so proxies that reorder
// parameters do not break verification.
func (s *Signer) digest(ts int64, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.%s.%s.", ts, method, path)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign stamps the request headers for an outbound proxied call.
func (s *Signer) Sign(req *http.Request, body []byte) {
	ts := s.clock().Unix()
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, s.digest(ts, req.Method, req.URL.Path, body))
}

// Verify checks an inbound request's signature headers against the body.
// Comparison is constant-time; timestamps outside ±MaxSkew are rejected
// before the digest is computed.
func (s *Signer) Verify(req *http.Request, body []byte) error {
	sig := req.Header.Get(HeaderSignature)
	tsRaw := req.Header.Get(HeaderTimestamp)
	if sig == "" || tsRaw == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}

	drift := s.clock().Sub(time.Unix(ts, 0))
	if drift > MaxSkew || drift < -MaxSkew {
		return ErrStaleTimestamp
	}

	want := s.digest(ts, req.Method, req.URL.Path, body)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}
