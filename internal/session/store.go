package session

import (
	"sync"
	"time"
)

// Pair is the upstream token pair held between refreshes.
// ExpiresAt is epoch seconds; a pair with no future expiry is no session.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenStore holds the current token pair and answers expiry queries.
// It is the single source of truth for "needs refresh"; no network calls
// originate here. Safe for concurrent use.
type TokenStore struct {
	mu   sync.Mutex
	pair Pair
	set  bool

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{clock: time.Now}
}

func (s *TokenStore) SetTokens(p Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ExpiresAt == 0 && p.ExpiresIn > 0 {
		p.ExpiresAt = s.clock().Unix() + p.ExpiresIn
	}
	s.pair = p
	s.set = true
}

// AccessToken returns the stored access token, if any.
func (s *TokenStore) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.pair.AccessToken == "" {
		return "", false
	}
	return s.pair.AccessToken, true
}

// RefreshToken returns the stored refresh token, if any.
func (s *TokenStore) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.pair.RefreshToken == "" {
		return "", false
	}
	return s.pair.RefreshToken, true
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	s.set = false
}

// IsExpired is true when nothing is stored or now >= expiry.
func (s *TokenStore) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.pair.ExpiresAt == 0 {
		return true
	}
	return s.clock().Unix() >= s.pair.ExpiresAt
}

// ExpiresWithin is true when the access token is missing, already
// expired, or will expire within d. Callers use it to refresh ahead of
// the deadline instead of on it.
func (s *TokenStore) ExpiresWithin(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.pair.AccessToken == "" || s.pair.ExpiresAt == 0 {
		return true
	}
	return s.clock().Add(d).Unix() >= s.pair.ExpiresAt
}

// HasValidTokens is true when an unexpired access token is present.
func (s *TokenStore) HasValidTokens() bool {
	s.mu.Lock()
	set, pair := s.set, s.pair
	now := s.clock().Unix()
	s.mu.Unlock()

	if !set || pair.AccessToken == "" || pair.ExpiresAt == 0 {
		return false
	}
	return now < pair.ExpiresAt
}
