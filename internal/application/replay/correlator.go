package replay

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

// Config controla la ventana de correlación y el ritmo de polling.
type Config struct {
	Window      time.Duration // registros aceptados hasta gameEnd+Window
	ClockSkew   time.Duration // y desde gameEnd-ClockSkew
	PollInitial time.Duration
	PollMax     time.Duration
	Ceiling     time.Duration // tiempo total máximo de AwaitResult
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Window:      10 * time.Minute,
		ClockSkew:   time.Minute,
		PollInitial: 5 * time.Second,
		PollMax:     30 * time.Second,
		Ceiling:     10 * time.Minute,
	}
}

// Correlator asigna registros del servicio de replays a partidas terminadas.
// Dos partidas que terminan dentro de la misma ventana pueden cruzarse: sin un
// identificador de sesión en el servidor la correlación por tiempo es heurística.
type Correlator struct {
	cfg      Config
	provider ports.ReplayProvider
	ledger   ports.ReplayLedger
	metrics  ports.Metrics
	now      func() time.Time

	// mu serializa FindResult para que dos partidas no reclamen el mismo registro.
	mu sync.Mutex
}

// New crea un Correlator. metrics puede ser nil.
func New(cfg Config, provider ports.ReplayProvider, ledger ports.ReplayLedger, metrics ports.Metrics) *Correlator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.PollInitial <= 0 {
		cfg.PollInitial = def.PollInitial
	}
	if cfg.PollMax < cfg.PollInitial {
		cfg.PollMax = cfg.PollInitial
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Correlator{
		cfg:      cfg,
		provider: provider,
		ledger:   ledger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// FindResult busca un registro no consumido cuya hora de fin esté dentro de
// [gameEnd-ClockSkew, gameEnd+Window]. Si hay varios gana el más cercano a gameEnd.
// Devuelve domain.ErrNotYetAvailable si todavía no hay ninguno.
func (c *Correlator) FindResult(ctx context.Context, gameID string, gameEnd time.Time) (domain.MatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.provider.RecentReplays(ctx)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("replay.FindResult: fetch records: %w", err)
	}

	lo := gameEnd.Add(-c.cfg.ClockSkew)
	hi := gameEnd.Add(c.cfg.Window)

	var best *domain.ReplayRecord
	var bestDist time.Duration
	for i := range records {
		r := &records[i]
		if r.ID == "" || r.EndedAt.Before(lo) || r.EndedAt.After(hi) {
			continue
		}
		consumed, err := c.ledger.IsConsumed(ctx, r.ID)
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("replay.FindResult: check ledger %s: %w", r.ID, err)
		}
		if consumed {
			continue
		}
		dist := absDuration(r.EndedAt.Sub(gameEnd))
		if best == nil || dist < bestDist {
			best, bestDist = r, dist
		}
	}

	if best == nil {
		return domain.MatchResult{}, domain.ErrNotYetAvailable
	}

	if err := c.ledger.MarkConsumed(ctx, best.ID, gameID, c.now()); err != nil {
		return domain.MatchResult{}, fmt.Errorf("replay.FindResult: mark consumed %s: %w", best.ID, err)
	}

	slog.Info("replay record correlated",
		"game_id", gameID,
		"record_id", best.ID,
		"outcome", best.Outcome,
		"offset", best.EndedAt.Sub(gameEnd).Round(time.Second),
	)
	return best.Result(), nil
}

// AwaitResult llama a FindResult con intervalos crecientes hasta encontrar un
// resultado, agotar Ceiling o cancelarse el contexto.
func (c *Correlator) AwaitResult(ctx context.Context, gameID string, gameEnd time.Time) (domain.MatchResult, error) {
	start := c.now()
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.Ceiling)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.PollInitial
	b.MaxInterval = c.cfg.PollMax
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.Reset()

	attempt := 0
	result, err := backoff.Retry(pollCtx, func() (domain.MatchResult, error) {
		attempt++
		res, err := c.FindResult(pollCtx, gameID, gameEnd)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, domain.ErrNotYetAvailable):
			slog.Debug("replay not yet available", "game_id", gameID, "attempt", attempt)
		default:
			slog.Warn("replay lookup failed", "game_id", gameID, "attempt", attempt, "err", err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.cfg.Ceiling),
	)

	elapsed := c.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			return domain.MatchResult{}, ctx.Err()
		}
		c.metrics.ObserveCorrelation(domain.OutcomeUnknown, elapsed, err)
		return domain.MatchResult{}, fmt.Errorf("replay.AwaitResult: no record after %s (%d attempts): %w",
			elapsed.Round(time.Second), attempt, domain.ErrNotYetAvailable)
	}
	c.metrics.ObserveCorrelation(result.Outcome, elapsed, nil)
	return result, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
