package prediction

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

// Config controla el ciclo de vida de la predicción.
type Config struct {
	Title         string
	WinOption     string
	LossOption    string
	WindowSeconds int

	ResultTimeout time.Duration // espera máxima de resultado tras terminar la partida
	LockOnGameEnd bool

	ResolveAttempts       int
	ResolveBackoffInitial time.Duration
	ResolveBackoffMax     time.Duration
	CallTimeout           time.Duration // timeout de cada llamada al mercado
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Title:                 "Will I win this game?",
		WinOption:             "Yes",
		LossOption:            "No",
		WindowSeconds:         120,
		ResultTimeout:         10 * time.Minute,
		ResolveAttempts:       4,
		ResolveBackoffInitial: 2 * time.Second,
		ResolveBackoffMax:     30 * time.Second,
		CallTimeout:           10 * time.Second,
	}
}

const inboxSize = 32

type gameStarted struct {
	gameID string
	at     time.Time
}

type gameEnded struct {
	gameID string
	at     time.Time
}

type resultReady struct {
	gameID string
	result domain.MatchResult
}

// pendingResolve es la resolución en curso de la sesión RESOLVING.
type pendingResolve struct {
	target    domain.RemoteStatus
	winningID string
	attempt   int
	backoff   *backoff.ExponentialBackOff
}

// Manager es el dueño único de la PredictionSession. Todos los comandos pasan
// por su inbox y se procesan de uno en uno en Run.
type Manager struct {
	cfg     Config
	market  ports.PredictionMarket
	auth    ports.Authorizer
	history ports.PredictionHistory
	metrics ports.Metrics
	now     func() time.Time
	inbox   chan any

	// Solo los toca Run.
	session    domain.PredictionSession
	timer      *time.Timer
	timeoutC   <-chan time.Time
	pending    *pendingResolve
	retryTimer *time.Timer
	retryC     <-chan time.Time

	mu       sync.Mutex
	snapshot domain.PredictionSession
}

// New crea un Manager. history y metrics pueden ser nil.
func New(cfg Config, market ports.PredictionMarket, auth ports.Authorizer, history ports.PredictionHistory, metrics ports.Metrics) *Manager {
	def := DefaultConfig()
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = def.ResultTimeout
	}
	if cfg.ResolveAttempts <= 0 {
		cfg.ResolveAttempts = def.ResolveAttempts
	}
	if cfg.ResolveBackoffInitial <= 0 {
		cfg.ResolveBackoffInitial = def.ResolveBackoffInitial
	}
	if cfg.ResolveBackoffMax < cfg.ResolveBackoffInitial {
		cfg.ResolveBackoffMax = cfg.ResolveBackoffInitial
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Manager{
		cfg:      cfg,
		market:   market,
		auth:     auth,
		history:  history,
		metrics:  metrics,
		now:      time.Now,
		inbox:    make(chan any, inboxSize),
		session:  domain.PredictionSession{Status: domain.PredictionNone},
		snapshot: domain.PredictionSession{Status: domain.PredictionNone},
	}
}

// GameStarted encola el inicio de una partida. No bloquea.
func (m *Manager) GameStarted(gameID string, at time.Time) {
	m.send(gameStarted{gameID: gameID, at: at})
}

// GameEnded encola el fin de una partida. No bloquea.
func (m *Manager) GameEnded(gameID string, at time.Time) {
	m.send(gameEnded{gameID: gameID, at: at})
}

// ResultReady entrega el resultado correlacionado de una partida. No bloquea.
func (m *Manager) ResultReady(gameID string, result domain.MatchResult) {
	m.send(resultReady{gameID: gameID, result: result})
}

func (m *Manager) send(cmd any) {
	select {
	case m.inbox <- cmd:
	default:
		slog.Error("prediction inbox full, command dropped", "command", fmt.Sprintf("%T", cmd))
	}
}

// Status devuelve una copia de la sesión actual (o la última terminada).
func (m *Manager) Status() domain.PredictionSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Run procesa comandos hasta que el contexto se cancele. Una predicción ACTIVE
// se deja abierta al salir.
func (m *Manager) Run(ctx context.Context) error {
	slog.Info("prediction manager starting",
		"title", m.cfg.Title,
		"window_seconds", m.cfg.WindowSeconds,
		"result_timeout", m.cfg.ResultTimeout,
	)
	defer m.stopTimer()
	defer m.stopRetry()

	for {
		select {
		case <-ctx.Done():
			if m.session.Status.Open() {
				slog.Warn("shutting down with open prediction", "prediction_id", m.session.ID, "status", m.session.Status)
			}
			slog.Info("prediction manager stopped")
			return nil
		case <-m.timeoutC:
			m.timeoutC = nil
			m.onTimeout(ctx)
		case <-m.retryC:
			m.retryTimer, m.retryC = nil, nil
			m.attemptResolve(ctx)
		case cmd := <-m.inbox:
			switch c := cmd.(type) {
			case gameStarted:
				m.onGameStarted(ctx, c)
			case gameEnded:
				m.onGameEnded(ctx, c)
			case resultReady:
				m.onResult(ctx, c)
			}
		}
	}
}

// NONE -> ACTIVE. Una sesión abierta anterior (RESOLVING incluido) pasa a
// FAILED antes.
func (m *Manager) onGameStarted(ctx context.Context, c gameStarted) {
	if m.session.Status.Open() {
		slog.Warn("game started with unresolved prediction, forcing FAILED",
			"prediction_id", m.session.ID,
			"previous_game", m.session.GameID,
			"status", m.session.Status,
		)
		m.stopTimer()
		m.stopRetry()
		m.finish(domain.PredictionFailed, "superseded by a new game")
	}
	m.set(domain.PredictionSession{GameID: c.gameID, Status: domain.PredictionNone})

	req := domain.PredictionRequest{
		Title:         m.cfg.Title,
		WinOption:     m.cfg.WinOption,
		LossOption:    m.cfg.LossOption,
		WindowSeconds: m.cfg.WindowSeconds,
	}
	// Limpieza y creación comparten token: un token revocado cuesta un único
	// refresco y un único reintento.
	var remote domain.RemotePrediction
	err := m.auth.Do(ctx, func(ctx context.Context, token string) error {
		if err := m.clearOpen(ctx, token); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		var err error
		remote, err = m.market.CreatePrediction(callCtx, token, req)
		return err
	})
	if err != nil {
		// Sin reintentos: perder la predicción de una partida es aceptable, duplicarla no.
		slog.Error("prediction create failed", "game_id", c.gameID, "err", err)
		return
	}

	s := domain.PredictionSession{
		GameID:        c.gameID,
		ID:            remote.ID,
		Title:         remote.Title,
		CreatedAt:     remote.CreatedAt,
		Status:        domain.PredictionActive,
		WinOutcomeID:  remote.OutcomeID(m.cfg.WinOption),
		LossOutcomeID: remote.OutcomeID(m.cfg.LossOption),
	}
	if s.Title == "" {
		s.Title = req.Title
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	if (s.WinOutcomeID == "" || s.LossOutcomeID == "") && len(remote.Outcomes) == 2 {
		s.WinOutcomeID, s.LossOutcomeID = remote.Outcomes[0].ID, remote.Outcomes[1].ID
	}
	m.set(s)
	m.metrics.ObservePrediction(s.Status)
	slog.Info("prediction created", "game_id", c.gameID, "prediction_id", s.ID, "title", s.Title)
}

// ACTIVE -> AWAITING_RESULT, con el temporizador de resultado.
func (m *Manager) onGameEnded(ctx context.Context, c gameEnded) {
	if m.session.Status != domain.PredictionActive || m.session.GameID != c.gameID {
		slog.Debug("game end without active prediction", "game_id", c.gameID, "status", m.session.Status)
		return
	}

	s := m.session
	s.Status = domain.PredictionAwaitingResult
	m.set(s)
	m.metrics.ObservePrediction(s.Status)
	m.startTimer(m.cfg.ResultTimeout)
	slog.Info("prediction awaiting result", "game_id", c.gameID, "prediction_id", s.ID, "timeout", m.cfg.ResultTimeout)

	if m.cfg.LockOnGameEnd {
		if _, err := m.end(ctx, s.ID, domain.RemoteLocked, ""); err != nil {
			slog.Warn("prediction lock failed", "prediction_id", s.ID, "err", err)
		}
	}
}

// AWAITING_RESULT -> RESOLVING con el resultado recibido.
func (m *Manager) onResult(ctx context.Context, c resultReady) {
	if m.session.Status != domain.PredictionAwaitingResult || m.session.GameID != c.gameID {
		slog.Info("result ignored: no prediction waiting for this game",
			"game_id", c.gameID,
			"session_game", m.session.GameID,
			"status", m.session.Status,
		)
		return
	}
	m.stopTimer()
	m.resolve(ctx, c.result.Outcome)
}

// AWAITING_RESULT -> RESOLVING con resultado UNKNOWN.
func (m *Manager) onTimeout(ctx context.Context) {
	if m.session.Status != domain.PredictionAwaitingResult {
		return
	}
	slog.Warn("no result before timeout, prediction will be canceled",
		"game_id", m.session.GameID,
		"prediction_id", m.session.ID,
	)
	m.resolve(ctx, domain.OutcomeUnknown)
}

// resolve paga la opción ganadora o cancela (devolución) si el resultado es
// UNKNOWN. Cada intento se ejecuta desde Run; entre intentos el loop sigue
// atendiendo el inbox, así que una partida nueva puede sustituir la sesión.
func (m *Manager) resolve(ctx context.Context, outcome domain.Outcome) {
	s := m.session
	s.Status = domain.PredictionResolving
	s.Outcome = outcome
	m.set(s)
	m.metrics.ObservePrediction(s.Status)

	target, winningID := domain.RemoteCanceled, ""
	switch outcome {
	case domain.OutcomeWin:
		target, winningID = domain.RemoteResolved, s.WinOutcomeID
	case domain.OutcomeLoss:
		target, winningID = domain.RemoteResolved, s.LossOutcomeID
	}
	if target == domain.RemoteResolved && winningID == "" {
		slog.Warn("winning outcome id unknown, canceling instead", "prediction_id", s.ID, "outcome", outcome)
		target = domain.RemoteCanceled
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.ResolveBackoffInitial
	b.MaxInterval = m.cfg.ResolveBackoffMax
	b.Reset()
	m.pending = &pendingResolve{target: target, winningID: winningID, backoff: b}
	m.attemptResolve(ctx)
}

// attemptResolve hace un intento de resolución. Si falla y quedan intentos
// programa el siguiente en retryC.
func (m *Manager) attemptResolve(ctx context.Context) {
	p := m.pending
	if p == nil || m.session.Status != domain.PredictionResolving {
		return
	}
	p.attempt++
	s := m.session

	status, reason, err := m.resolveOnce(ctx, s, p)
	if err == nil {
		m.pending = nil
		m.finish(status, reason)
		return
	}
	if ctx.Err() != nil {
		return
	}

	slog.Warn("prediction resolve attempt failed", "prediction_id", s.ID, "attempt", p.attempt, "err", err)
	if errors.Is(err, domain.ErrUnauthorized) || p.attempt >= m.cfg.ResolveAttempts {
		m.pending = nil
		m.finish(domain.PredictionFailed, fmt.Sprintf("resolve failed after %d attempts: %v", p.attempt, err))
		return
	}

	wait := p.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = m.cfg.ResolveBackoffMax
	}
	m.retryTimer = time.NewTimer(wait)
	m.retryC = m.retryTimer.C
}

// resolveOnce lee el estado remoto (la plataforma puede haberla cancelado o
// alguien puede haberla resuelto a mano) y, si sigue abierta, la cierra.
func (m *Manager) resolveOnce(ctx context.Context, s domain.PredictionSession, p *pendingResolve) (domain.PredictionStatus, string, error) {
	remote, err := m.get(ctx, s.ID)
	if err != nil {
		return "", "", err
	}
	switch remote.Status {
	case domain.RemoteCanceled:
		return domain.PredictionCanceledExternally, "canceled on the platform", nil
	case domain.RemoteResolved:
		return domain.PredictionResolved, "already resolved on the platform", nil
	}

	if _, err := m.end(ctx, s.ID, p.target, p.winningID); err != nil {
		return "", "", err
	}
	if p.target == domain.RemoteCanceled {
		return domain.PredictionResolved, "refunded: outcome unknown", nil
	}
	return domain.PredictionResolved, "paid out: " + string(s.Outcome), nil
}

// clearOpen cancela (devuelve los puntos) la predicción abierta del canal, sea
// una sesión abandonada o una que quedó de una ejecución anterior. Best effort
// salvo para domain.ErrUnauthorized, que se devuelve para que Do refresque.
func (m *Manager) clearOpen(ctx context.Context, token string) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	latest, found, err := m.market.LatestPrediction(callCtx, token)
	if errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	if err != nil {
		slog.Warn("could not check for open predictions", "err", err)
		return nil
	}
	if !found || (latest.Status != domain.RemoteActive && latest.Status != domain.RemoteLocked) {
		return nil
	}

	_, err = m.market.EndPrediction(callCtx, token, latest.ID, domain.RemoteCanceled, "")
	if errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	if err != nil {
		slog.Warn("could not cancel open prediction", "prediction_id", latest.ID, "err", err)
		return nil
	}
	slog.Info("open prediction canceled", "prediction_id", latest.ID, "title", latest.Title)
	return nil
}

func (m *Manager) get(ctx context.Context, id string) (domain.RemotePrediction, error) {
	var remote domain.RemotePrediction
	err := m.auth.Do(ctx, func(ctx context.Context, token string) error {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		var err error
		remote, err = m.market.GetPrediction(callCtx, token, id)
		return err
	})
	return remote, err
}

func (m *Manager) end(ctx context.Context, id string, status domain.RemoteStatus, winningID string) (domain.RemotePrediction, error) {
	var remote domain.RemotePrediction
	err := m.auth.Do(ctx, func(ctx context.Context, token string) error {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		var err error
		remote, err = m.market.EndPrediction(callCtx, token, id, status, winningID)
		return err
	})
	return remote, err
}

// finish deja la sesión en un estado terminal y la persiste en el histórico.
func (m *Manager) finish(status domain.PredictionStatus, reason string) {
	s := m.session
	s.Status = status
	s.Reason = reason
	s.FinishedAt = m.now()
	m.set(s)
	m.metrics.ObservePrediction(status)

	if status == domain.PredictionFailed {
		slog.Error("prediction failed", "game_id", s.GameID, "prediction_id", s.ID, "reason", reason)
	} else {
		slog.Info("prediction finished", "game_id", s.GameID, "prediction_id", s.ID, "status", status, "reason", reason)
	}

	if m.history != nil && s.ID != "" {
		if err := m.history.SavePrediction(context.Background(), s); err != nil {
			slog.Warn("could not save prediction history", "prediction_id", s.ID, "err", err)
		}
	}
}

func (m *Manager) set(s domain.PredictionSession) {
	m.session = s
	m.mu.Lock()
	m.snapshot = s
	m.mu.Unlock()
}

func (m *Manager) startTimer(d time.Duration) {
	m.stopTimer()
	m.timer = time.NewTimer(d)
	m.timeoutC = m.timer.C
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timeoutC = nil
}

func (m *Manager) stopRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retryC = nil
	m.pending = nil
}
