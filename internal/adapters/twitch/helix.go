package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// broadcaster devuelve el ID numérico del canal. Se resuelve una vez con
// GET /users y se cachea; con login vacío Helix devuelve el dueño del token.
func (c *Client) broadcaster(ctx context.Context, token string) (string, error) {
	if c.broadcasterID != "" {
		return c.broadcasterID, nil
	}
	path := "/users"
	if c.cfg.Broadcaster != "" {
		path += "?login=" + url.QueryEscape(c.cfg.Broadcaster)
	}
	var resp usersResponse
	if err := c.do(ctx, token, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("twitch.broadcaster: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", fmt.Errorf("twitch.broadcaster: user %q not found: %w", c.cfg.Broadcaster, domain.ErrMalformedResponse)
	}
	c.broadcasterID = resp.Data[0].ID
	slog.Info("twitch broadcaster resolved", "login", resp.Data[0].Login, "id", c.broadcasterID)
	return c.broadcasterID, nil
}

// CreatePrediction crea una predicción con las dos opciones del request.
func (c *Client) CreatePrediction(ctx context.Context, token string, req domain.PredictionRequest) (domain.RemotePrediction, error) {
	id, err := c.broadcaster(ctx, token)
	if err != nil {
		return domain.RemotePrediction{}, err
	}
	body := createPredictionRequest{
		BroadcasterID: id,
		Title:         req.Title,
		Outcomes: []createOutcomeBody{
			{Title: req.WinOption},
			{Title: req.LossOption},
		},
		PredictionWindow: req.WindowSeconds,
	}
	var resp predictionsResponse
	if err := c.doOnce(ctx, token, http.MethodPost, "/predictions", body, &resp); err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.CreatePrediction: %w", err)
	}
	p, err := firstPrediction(resp)
	if err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.CreatePrediction: %w", err)
	}
	return p, nil
}

// GetPrediction consulta una predicción por ID.
func (c *Client) GetPrediction(ctx context.Context, token, predictionID string) (domain.RemotePrediction, error) {
	id, err := c.broadcaster(ctx, token)
	if err != nil {
		return domain.RemotePrediction{}, err
	}
	q := url.Values{"broadcaster_id": {id}, "id": {predictionID}}
	var resp predictionsResponse
	if err := c.do(ctx, token, http.MethodGet, "/predictions?"+q.Encode(), nil, &resp); err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.GetPrediction: %w", err)
	}
	p, err := firstPrediction(resp)
	if err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.GetPrediction: %w", err)
	}
	return p, nil
}

// LatestPrediction devuelve la predicción más reciente del canal.
func (c *Client) LatestPrediction(ctx context.Context, token string) (domain.RemotePrediction, bool, error) {
	id, err := c.broadcaster(ctx, token)
	if err != nil {
		return domain.RemotePrediction{}, false, err
	}
	q := url.Values{"broadcaster_id": {id}, "first": {"1"}}
	var resp predictionsResponse
	if err := c.do(ctx, token, http.MethodGet, "/predictions?"+q.Encode(), nil, &resp); err != nil {
		return domain.RemotePrediction{}, false, fmt.Errorf("twitch.LatestPrediction: %w", err)
	}
	if len(resp.Data) == 0 {
		return domain.RemotePrediction{}, false, nil
	}
	return mapPrediction(resp.Data[0]), true, nil
}

// EndPrediction resuelve, cancela o bloquea una predicción.
func (c *Client) EndPrediction(ctx context.Context, token, predictionID string, status domain.RemoteStatus, winningOutcomeID string) (domain.RemotePrediction, error) {
	id, err := c.broadcaster(ctx, token)
	if err != nil {
		return domain.RemotePrediction{}, err
	}
	body := endPredictionRequest{
		BroadcasterID: id,
		ID:            predictionID,
		Status:        string(status),
	}
	if status == domain.RemoteResolved {
		body.WinningOutcomeID = winningOutcomeID
	}
	var resp predictionsResponse
	if err := c.do(ctx, token, http.MethodPatch, "/predictions", body, &resp); err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.EndPrediction %s: %w", status, err)
	}
	p, err := firstPrediction(resp)
	if err != nil {
		return domain.RemotePrediction{}, fmt.Errorf("twitch.EndPrediction: %w", err)
	}
	return p, nil
}
