package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/alejandrodnm/scenebot/internal/ports"
	"github.com/google/uuid"
)

// SceneController es lo que el Orchestrator necesita del controlador de escenas.
// Ninguna llamada bloquea.
type SceneController interface {
	Apply(ev domain.StateTransitionEvent)
	Loading(active bool)
	Hold(held bool)
}

// PredictionManager es lo que el Orchestrator necesita del gestor de predicciones.
// Ninguna llamada bloquea.
type PredictionManager interface {
	GameStarted(gameID string, at time.Time)
	GameEnded(gameID string, at time.Time)
	ResultReady(gameID string, result domain.MatchResult)
}

// Deps agrupa los componentes opcionales. Un campo nil = integración deshabilitada.
type Deps struct {
	Scenes      SceneController
	Predictions PredictionManager
	Results     ports.ResultFinder
	Overlay     ports.SummaryWriter
}

// Orchestrator implementa gamestate.Observer: reparte cada transición a las
// integraciones sin que una lenta retrase a las demás.
type Orchestrator struct {
	deps  Deps
	newID func() string

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu                sync.Mutex
	closed            bool // lo pone Run antes de wg.Wait; wg.Add solo con !closed
	gameID            string
	cancelCorrelation context.CancelFunc
	lastResult        *domain.MatchResult
}

// New crea un Orchestrator.
func New(deps Deps) *Orchestrator {
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:  deps,
		newID: uuid.NewString,
		ctx:   ctx,
		stop:  stop,
	}
}

// Run espera a que el contexto se cancele y entonces cancela las correlaciones
// en curso y espera a que terminen.
func (o *Orchestrator) Run(ctx context.Context) error {
	<-ctx.Done()
	o.mu.Lock()
	o.closed = true
	if o.cancelCorrelation != nil {
		o.cancelCorrelation()
		o.cancelCorrelation = nil
	}
	o.mu.Unlock()
	o.stop()
	o.wg.Wait()
	return nil
}

// OnTransition implementa gamestate.Observer.
func (o *Orchestrator) OnTransition(ev domain.StateTransitionEvent) {
	// La escena primero: nunca espera a las predicciones.
	if o.deps.Scenes != nil {
		o.deps.Scenes.Apply(ev)
	}

	switch {
	case ev.StartsMatch():
		o.onMatchStart(ev)
	case ev.EndsMatch():
		o.onMatchEnd(ev)
	}
}

// OnPending implementa gamestate.Observer.
func (o *Orchestrator) OnPending(candidate domain.GameState, pending bool) {
	slog.Debug("game state pending", "candidate", candidate, "pending", pending)
	if o.deps.Scenes != nil {
		o.deps.Scenes.Loading(pending)
	}
}

// OnHealthChange implementa gamestate.Observer.
func (o *Orchestrator) OnHealthChange(degraded bool) {
	if o.deps.Scenes != nil {
		o.deps.Scenes.Hold(degraded)
	}
}

// LastResult devuelve el último resultado correlacionado, o nil.
func (o *Orchestrator) LastResult() *domain.MatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// GameID devuelve el ID de la última partida empezada.
func (o *Orchestrator) GameID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gameID
}

func (o *Orchestrator) onMatchStart(ev domain.StateTransitionEvent) {
	id := o.newID()
	o.mu.Lock()
	o.gameID = id
	o.mu.Unlock()
	slog.Info("match started", "game_id", id, "at", ev.Timestamp.Format(time.RFC3339))

	if o.deps.Predictions != nil {
		o.deps.Predictions.GameStarted(id, ev.Timestamp)
	}
	if o.deps.Overlay != nil {
		o.goBackground(func(ctx context.Context) {
			if err := o.deps.Overlay.Clear(ctx); err != nil {
				slog.Warn("could not clear overlay", "err", err)
			}
		})
	}
}

func (o *Orchestrator) onMatchEnd(ev domain.StateTransitionEvent) {
	o.mu.Lock()
	id := o.gameID
	o.mu.Unlock()
	slog.Info("match ended", "game_id", id, "at", ev.Timestamp.Format(time.RFC3339))

	if o.deps.Predictions != nil {
		o.deps.Predictions.GameEnded(id, ev.Timestamp)
	}
	if o.deps.Results == nil {
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(o.ctx)
	if o.cancelCorrelation != nil {
		// Solo se correlaciona la última partida terminada.
		o.cancelCorrelation()
	}
	o.cancelCorrelation = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.correlate(ctx, id, ev.Timestamp)
	}()
}

func (o *Orchestrator) correlate(ctx context.Context, gameID string, gameEnd time.Time) {
	result, err := o.deps.Results.AwaitResult(ctx, gameID, gameEnd)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("correlation canceled", "game_id", gameID)
			return
		}
		slog.Warn("no match result", "game_id", gameID, "err", err)
		return
	}

	slog.Info("match result ready", "game_id", gameID, "outcome", result.Outcome, "record_id", result.SourceRecordID)

	o.mu.Lock()
	o.lastResult = &result
	o.mu.Unlock()

	if o.deps.Predictions != nil {
		o.deps.Predictions.ResultReady(gameID, result)
	}
	if o.deps.Overlay != nil {
		if err := o.deps.Overlay.WriteSummary(ctx, result); err != nil {
			slog.Warn("could not write overlay", "err", err)
		}
	}
}

func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}
