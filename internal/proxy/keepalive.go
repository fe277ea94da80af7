package proxy

import (
	"context"
	"log/slog"

	"crm-platform/internal/config"
	"crm-platform/internal/session"

	"golang.org/x/oauth2"
)

// TokenRefresher redeems a refresh token upstream. *oauth.Provider
// satisfies this.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// NewKeepAlive builds the background refresher that keeps the service
// token warm. seed is the long-lived refresh token from config; rotated
// refresh tokens supersede it once the first exchange lands.
func NewKeepAlive(refresher TokenRefresher, tokens *session.TokenStore, cfg config.RefreshConfig, seed string, log *slog.Logger) *session.Refresher {
	return session.NewRefresher(session.RefresherConfig{
		Interval:     cfg.Interval,
		MinInterval:  cfg.MinInterval,
		InitialDelay: cfg.InitialDelay,
		Check: func(ctx context.Context) error {
			// Renew one interval ahead so callers never observe an
			// expired token between ticks.
			if !tokens.ExpiresWithin(cfg.Interval) {
				return nil
			}
			rt, ok := tokens.RefreshToken()
			if !ok {
				rt = seed
			}
			tok, err := refresher.Refresh(ctx, rt)
			if err != nil {
				return err
			}
			pair := session.Pair{
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
			}
			if pair.RefreshToken == "" {
				pair.RefreshToken = rt
			}
			if !tok.Expiry.IsZero() {
				pair.ExpiresAt = tok.Expiry.Unix()
			}
			tokens.SetTokens(pair)
			return nil
		},
		OnRefreshed: func() {
			log.Debug("service token refreshed")
		},
		OnExpired: func(err error) {
			tokens.Clear()
			log.Error("service token keep-alive gave up", "err", err)
		},
	})
}
