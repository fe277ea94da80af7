package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State is the single-use record tied to one authorization redirect.
// Created when the redirect is issued, consumed exactly once when the
// callback arrives, unreadable afterwards.
type State struct {
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectTo   string `json:"redirect_to,omitempty"`
}

// ErrStateNotFound covers unknown, expired, and already-consumed states.
// All three are indistinguishable on purpose: each means the callback's
// state does not match a live local nonce.
var ErrStateNotFound = errors.New("oauth state not found")

// NewNonce returns a fresh CSRF state nonce.
func NewNonce() string { return uuid.NewString() }

// EncodeStateParam packs nonce and requested destination into the state
// query parameter (base64url JSON, padding stripped).
func EncodeStateParam(s State) string {
	raw, _ := json.Marshal(struct {
		Nonce      string `json:"nonce"`
		RedirectTo string `json:"redirect_to,omitempty"`
	}{Nonce: s.Nonce, RedirectTo: s.RedirectTo})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeStateParam unpacks a state query parameter.
func DecodeStateParam(param string) (State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(param)
	if err != nil {
		return State{}, fmt.Errorf("decode state param: %w", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decode state param: %w", err)
	}
	if s.Nonce == "" {
		return State{}, errors.New("state param has no nonce")
	}
	return s, nil
}

// StateStore persists authorization states between redirect and callback.
type StateStore interface {
	Save(ctx context.Context, s State, ttl time.Duration) error
	// Consume returns the state for nonce and deletes it atomically.
	// A second Consume for the same nonce returns ErrStateNotFound.
	Consume(ctx context.Context, nonce string) (State, error)
}

const stateKeyPrefix = "oauth:state:"

// consumeScript reads and deletes in one round trip so a replayed callback
// can never redeem the same state twice.
var consumeScript = redis.NewScript(`
-- KEYS[1] = state key
local v = redis.call('GET', KEYS[1])
if v then
  redis.call('DEL', KEYS[1])
end
return v
`)

// RedisStateStore is the production StateStore.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func (s *RedisStateStore) Save(ctx context.Context, st State, ttl time.Duration) error {
	if st.Nonce == "" {
		return errors.New("state nonce is required")
	}
	if ttl <= 0 {
		return errors.New("state ttl must be > 0")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, stateKeyPrefix+st.Nonce, raw, ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (State, error) {
	if strings.TrimSpace(nonce) == "" {
		return State{}, ErrStateNotFound
	}
	res, err := consumeScript.Run(ctx, s.rdb, []string{stateKeyPrefix + nonce}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	raw, ok := res.(string)
	if !ok || raw == "" {
		return State{}, ErrStateNotFound
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("corrupt state record: %w", err)
	}
	return st, nil
}
