package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultHelixBase = "https://api.twitch.tv/helix"
	defaultTokenURL  = "https://id.twitch.tv/oauth2/token"

	// Helix: 800 puntos/minuto por token. Muy por debajo de eso.
	helixRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config son los parámetros de la API de Twitch.
type Config struct {
	ClientID     string
	ClientSecret string
	Broadcaster  string // login del canal; vacío = dueño del token
	HelixBase    string
	TokenURL     string
	Timeout      time.Duration
}

// Client es el HTTP client de Helix con rate limiting y retries.
// Implementa ports.PredictionMarket y ports.TokenExchanger.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	broadcasterID string // resuelto en la primera llamada; solo lo usa el loop del Manager
}

// NewClient crea un Client. URLs vacías usan las de producción.
func NewClient(cfg Config) *Client {
	if cfg.HelixBase == "" {
		cfg.HelixBase = defaultHelixBase
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(helixRatePerSec, 5),
	}
}

// do hace una request autenticada con rate limiting y retries.
func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	return c.send(ctx, true, token, method, path, body, out)
}

// doOnce es do para requests no idempotentes: solo reintenta 429. Un error de
// red o un 5xx puede llegar después de que Twitch haya aplicado la request.
func (c *Client) doOnce(ctx context.Context, token, method, path string, body, out any) error {
	return c.send(ctx, false, token, method, path, body, out)
}

func (c *Client) send(ctx context.Context, idempotent bool, token, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}
	return c.doWithRetry(ctx, idempotent, func() (*http.Response, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.HelixBase+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Client-Id", c.cfg.ClientID)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial. 401 se devuelve como
// domain.ErrUnauthorized sin reintentar: el refresco lo decide quien llama.
// Con idempotent=false solo se reintenta 429.
func (c *Client) doWithRetry(ctx context.Context, idempotent bool, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if !idempotent {
				return fmt.Errorf("request failed: %w", err)
			}
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if !idempotent {
				return fmt.Errorf("server error %d", resp.StatusCode)
			}
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, string(body))
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w (%v)", domain.ErrMalformedResponse, err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
