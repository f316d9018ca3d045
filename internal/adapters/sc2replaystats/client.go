package sc2replaystats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://api.sc2replaystats.com"

	requestsPerSec = 2
	maxTries       = 3
)

// Client consulta la API de SC2ReplayStats. Implementa ports.ReplayProvider.
type Client struct {
	http    *http.Client
	base    string
	authKey string
	limiter *rate.Limiter

	accountIDs map[string]bool // cacheado en la primera llamada que lo consigue
}

// NewClient crea un Client. base vacío usa la API pública.
func NewClient(base, authKey string, timeout time.Duration) *Client {
	if base == "" {
		base = defaultBase
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    base,
		authKey: authKey,
		limiter: rate.NewLimiter(requestsPerSec, 1),
	}
}

// PlayerIDs devuelve los players_id asociados a la cuenta. También sirve para
// comprobar la clave al arrancar.
func (c *Client) PlayerIDs(ctx context.Context) ([]string, error) {
	var players []accountPlayer
	if err := c.get(ctx, "/account/players", &players); err != nil {
		return nil, fmt.Errorf("sc2replaystats.PlayerIDs: %w", err)
	}
	ids := make([]string, 0, len(players))
	for _, p := range players {
		if p.Player.ID != "" {
			ids = append(ids, string(p.Player.ID))
		}
	}
	slog.Debug("sc2replaystats account players", "ids", ids)
	return ids, nil
}

// RecentReplays devuelve el último replay subido a la cuenta. La API solo
// expone el último, así que el slice tiene como mucho un elemento.
func (c *Client) RecentReplays(ctx context.Context) ([]domain.ReplayRecord, error) {
	if c.accountIDs == nil {
		ids, err := c.PlayerIDs(ctx)
		if err != nil {
			return nil, err
		}
		c.accountIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.accountIDs[id] = true
		}
	}

	var last lastReplay
	if err := c.get(ctx, "/account/last-replay", &last); err != nil {
		return nil, fmt.Errorf("sc2replaystats.RecentReplays: %w", err)
	}
	if last.ReplayDate == "" && len(last.Players) == 0 {
		return nil, nil
	}
	rec, err := toRecord(last, c.accountIDs)
	if err != nil {
		return nil, fmt.Errorf("sc2replaystats.RecentReplays: %w", err)
	}
	return []domain.ReplayRecord{rec}, nil
}

// get hace un GET con la clave de la cuenta. Reintenta errores de red, 429 y 5xx.
func (c *Client) get(ctx context.Context, path string, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	b.Reset()

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.authKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			slog.Warn("sc2replaystats request failed, retrying", "path", path, "status", resp.StatusCode)
			return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, backoff.Permanent(fmt.Errorf("GET %s: %w", path, domain.ErrUnauthorized))
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, backoff.Permanent(fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, string(msg)))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("GET %s: read body: %w", path, err)
		}
		return data, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w (%v)", path, domain.ErrMalformedResponse, err)
	}
	return nil
}
