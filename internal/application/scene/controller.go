package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/alejandrodnm/scenebot/internal/ports"
	"github.com/cenkalti/backoff/v5"
)

// Scenes son los nombres de escena configurados.
type Scenes struct {
	InGame    string
	Replay    string // vacío = InGame
	OutOfGame string
	Loading   string // opcional
}

// Config controla el Controller.
type Config struct {
	Scenes           Scenes
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Status es un snapshot del Controller para el endpoint de estado.
type Status struct {
	Connected   bool   `json:"connected"`
	Held        bool   `json:"held"`
	Desired     string `json:"desired"`
	LastApplied string `json:"last_applied"`
}

// Controller mantiene la escena deseada como un registro last-write-wins y la
// aplica desde su propio loop. Apply, Loading y Hold nunca bloquean.
type Controller struct {
	cfg      Config
	switcher ports.SceneSwitcher
	metrics  ports.Metrics
	wake     chan struct{}

	mu          sync.Mutex
	base        string
	loading     bool
	held        bool
	connected   bool
	lastApplied string
}

// New crea un Controller. La escena inicial deseada es la de fuera de partida.
func New(cfg Config, switcher ports.SceneSwitcher, metrics ports.Metrics) *Controller {
	if cfg.Scenes.Replay == "" {
		cfg.Scenes.Replay = cfg.Scenes.InGame
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = 30 * time.Second
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Controller{
		cfg:      cfg,
		switcher: switcher,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
		base:     cfg.Scenes.OutOfGame,
	}
}

// SceneFor devuelve la escena configurada para un estado confirmado.
func (c *Controller) SceneFor(state domain.GameState) string {
	switch state {
	case domain.StateInGame:
		return c.cfg.Scenes.InGame
	case domain.StateWatchingReplay:
		return c.cfg.Scenes.Replay
	default:
		return c.cfg.Scenes.OutOfGame
	}
}

// Apply registra la escena para el estado destino de la transición.
func (c *Controller) Apply(ev domain.StateTransitionEvent) {
	c.mu.Lock()
	c.base = c.SceneFor(ev.To)
	c.loading = false
	c.mu.Unlock()
	c.notify()
}

// Loading muestra u oculta la escena de carga mientras se confirma una entrada.
// No hace nada si no hay escena de carga configurada.
func (c *Controller) Loading(active bool) {
	if c.cfg.Scenes.Loading == "" {
		return
	}
	c.mu.Lock()
	changed := c.loading != active
	c.loading = active
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Hold pausa (true) o reanuda (false) el envío de escenas. En pausa se
// mantiene la última escena aplicada.
func (c *Controller) Hold(held bool) {
	c.mu.Lock()
	c.held = held
	c.mu.Unlock()
	if !held {
		c.notify()
	}
}

// Status devuelve un snapshot del Controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:   c.connected,
		Held:        c.held,
		Desired:     c.desired(),
		LastApplied: c.lastApplied,
	}
}

func (c *Controller) desired() string {
	if c.loading {
		return c.cfg.Scenes.Loading
	}
	return c.base
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Sync envía la escena deseada si difiere de la última aplicada.
// Devuelve error solo si la conexión debe reabrirse.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	want := c.desired()
	skip := c.held || want == "" || want == c.lastApplied
	c.mu.Unlock()
	if skip {
		return nil
	}

	err := c.switcher.SetScene(ctx, want)
	c.metrics.ObserveSceneSwitch(want, err)

	switch {
	case err == nil:
		slog.Info("scene switched", "scene", want)
	case errors.Is(err, domain.ErrSceneRejected):
		// La escena no existe: reintentar no sirve hasta que cambie la deseada.
		slog.Error("scene switch rejected", "scene", want, "err", err)
	default:
		return fmt.Errorf("scene.Sync: set %q: %w", want, err)
	}

	c.mu.Lock()
	c.lastApplied = want
	c.mu.Unlock()
	return nil
}

// Run mantiene la conexión abierta y aplica la escena deseada hasta que el
// contexto se cancele. Tras una reconexión solo se envía la última escena deseada.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("scene controller starting",
		"in_game", c.cfg.Scenes.InGame,
		"replay", c.cfg.Scenes.Replay,
		"out_of_game", c.cfg.Scenes.OutOfGame,
		"loading", c.cfg.Scenes.Loading,
	)
	defer c.switcher.Close()

	for {
		if err := c.connect(ctx); err != nil {
			slog.Info("scene controller stopped")
			return nil
		}
		c.checkScenes(ctx)
		c.serve(ctx)

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		if ctx.Err() != nil {
			slog.Info("scene controller stopped")
			return nil
		}
	}
}

// connect reintenta la conexión con backoff exponencial acotado.
func (c *Controller) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectInitial
	b.MaxInterval = c.cfg.ReconnectMax
	b.Reset()

	for attempt := 1; ; attempt++ {
		err := c.switcher.Connect(ctx)
		if err == nil {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			slog.Info("scene controller connected", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		if attempt == 1 {
			slog.Warn("scene controller connect failed", "err", err, "retry_in", wait)
		} else {
			slog.Debug("scene controller connect failed", "err", err, "attempt", attempt, "retry_in", wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// serve aplica la escena deseada cada vez que cambia, hasta perder la conexión.
func (c *Controller) serve(ctx context.Context) {
	for {
		if err := c.Sync(ctx); err != nil {
			if ctx.Err() == nil {
				slog.Warn("scene controller lost connection", "err", err)
				c.switcher.Close()
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// checkScenes avisa de escenas configuradas que no existen.
func (c *Controller) checkScenes(ctx context.Context) {
	names, err := c.switcher.ListScenes(ctx)
	if err != nil {
		slog.Warn("could not list scenes", "err", err)
		return
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}
	for _, want := range []string{c.cfg.Scenes.InGame, c.cfg.Scenes.Replay, c.cfg.Scenes.OutOfGame, c.cfg.Scenes.Loading} {
		if want != "" && !existing[want] {
			slog.Warn("configured scene not found", "scene", want, "available", names)
		}
	}
}
