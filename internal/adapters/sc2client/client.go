package sc2client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "http://127.0.0.1:6119"

	// Tope de seguridad: el Monitor hace como mucho dos requests por tick.
	requestsPerSec = 10
)

// Client lee el estado del cliente del juego por su API HTTP local.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client. Si base está vacío usa la dirección local por defecto.
func NewClient(base string, timeout time.Duration) *Client {
	if base == "" {
		base = defaultBase
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    base,
		limiter: rate.NewLimiter(requestsPerSec, 2),
	}
}

// Poll implementa ports.GameStateSource. Una lista de pantallas vacía (o la
// pantalla de carga) significa que hay una partida o replay en curso; /game
// distingue entre ambos.
func (c *Client) Poll(ctx context.Context) (domain.GameState, error) {
	var ui uiResponse
	if err := c.get(ctx, "/ui", &ui); err != nil {
		return domain.StateUnknown, fmt.Errorf("sc2client.Poll: %w", err)
	}
	if ui.ActiveScreens == nil {
		return domain.StateUnknown, fmt.Errorf("sc2client.Poll: missing activeScreens: %w", domain.ErrMalformedResponse)
	}

	screens := *ui.ActiveScreens
	if len(screens) > 0 && !slices.Contains(screens, loadingScreen) {
		return domain.StateMenu, nil
	}

	game, err := c.game(ctx)
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("sc2client.Poll: %w", err)
	}
	if game.IsReplay {
		return domain.StateWatchingReplay, nil
	}
	return domain.StateInGame, nil
}

// LastOutcome devuelve el resultado de la partida actual o la última terminada
// según el propio cliente. isReplay indica si esa partida era un replay.
func (c *Client) LastOutcome(ctx context.Context) (outcome domain.Outcome, decided, isReplay bool, err error) {
	game, err := c.game(ctx)
	if err != nil {
		return domain.OutcomeUnknown, false, false, fmt.Errorf("sc2client.LastOutcome: %w", err)
	}
	if len(game.Players) == 0 {
		return domain.OutcomeUnknown, false, game.IsReplay, fmt.Errorf("sc2client.LastOutcome: no players: %w", domain.ErrMalformedResponse)
	}

	// El jugador local es siempre el primero de la lista.
	switch game.Players[0].Result {
	case "Victory":
		return domain.OutcomeWin, true, game.IsReplay, nil
	case "Defeat", "Tie":
		return domain.OutcomeLoss, true, game.IsReplay, nil
	case "Undecided":
		return domain.OutcomeUnknown, false, game.IsReplay, nil
	default:
		return domain.OutcomeUnknown, false, game.IsReplay,
			fmt.Errorf("sc2client.LastOutcome: result %q: %w", game.Players[0].Result, domain.ErrMalformedResponse)
	}
}

func (c *Client) game(ctx context.Context) (gameResponse, error) {
	var g gameResponse
	if err := c.get(ctx, "/game", &g); err != nil {
		return g, err
	}
	return g, nil
}

// get hace un GET sin reintentos: el siguiente tick del Monitor ya es el reintento.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w (%v)", path, domain.ErrClientUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s: %w", path, resp.StatusCode, string(body), domain.ErrClientUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
			return fmt.Errorf("GET %s: decode: %w (%v)", path, domain.ErrMalformedResponse, err)
		}
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
