package twitch

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"golang.org/x/oauth2"
)

// Refresh canjea el refresh token en el endpoint OAuth de Twitch.
// Twitch espera client_id y client_secret en el body, no en Basic auth.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	if refreshToken == "" {
		return domain.Credential{}, fmt.Errorf("twitch.Refresh: no refresh token: %w", domain.ErrUnauthorized)
	}
	conf := oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Credential{}, fmt.Errorf("twitch.Refresh: rate limiter: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return domain.Credential{}, fmt.Errorf("twitch.Refresh: %w: %v", domain.ErrUnauthorized, err)
		}
		return domain.Credential{}, fmt.Errorf("twitch.Refresh: %w", err)
	}

	cred := domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	return cred, nil
}
