package gamestate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/alejandrodnm/scenebot/internal/ports"
)

// Observer recibe los eventos del Monitor. Las implementaciones no deben
// bloquear: se llaman desde el loop de polling.
type Observer interface {
	OnTransition(ev domain.StateTransitionEvent)
	// OnPending avisa cuando un estado de juego empieza (true) o deja (false)
	// de formarse sin estar confirmado todavía.
	OnPending(candidate domain.GameState, pending bool)
	// OnHealthChange avisa al entrar (true) o salir (false) del modo degradado.
	OnHealthChange(degraded bool)
}

// Config controla el polling y el debounce.
type Config struct {
	Interval         time.Duration
	Confirmations    int // K lecturas consecutivas iguales
	FailureThreshold int // polls fallidos seguidos antes del modo degradado
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Second,
		Confirmations:    2,
		FailureThreshold: 10,
	}
}

// Status es un snapshot del Monitor para el endpoint de estado.
type Status struct {
	Confirmed    domain.GameState `json:"confirmed"`
	Degraded     bool             `json:"degraded"`
	Failures     int              `json:"consecutive_failures"`
	LastPollAt   time.Time        `json:"last_poll_at"`
	LastChangeAt time.Time        `json:"last_change_at"`
}

// Monitor hace polling del cliente del juego y emite transiciones confirmadas.
type Monitor struct {
	cfg       Config
	source    ports.GameStateSource
	observer  Observer
	metrics   ports.Metrics
	debouncer *Debouncer
	now       func() time.Time

	pending     bool
	pendingWhat domain.GameState

	mu     sync.Mutex
	status Status
}

// New crea un Monitor. metrics puede ser nil.
func New(cfg Config, source ports.GameStateSource, observer Observer, metrics ports.Metrics) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Confirmations < 2 {
		cfg.Confirmations = def.Confirmations
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	d := NewDebouncer(cfg.Confirmations)
	return &Monitor{
		cfg:       cfg,
		source:    source,
		observer:  observer,
		metrics:   metrics,
		debouncer: d,
		now:       time.Now,
		status:    Status{Confirmed: d.Confirmed()},
	}
}

// Run ejecuta el loop de polling hasta que el contexto se cancele.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("game state monitor starting",
		"interval", m.cfg.Interval,
		"confirmations", m.cfg.Confirmations,
		"failure_threshold", m.cfg.FailureThreshold,
	)

	m.PollOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("game state monitor stopped")
			return nil
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce hace una lectura y entrega al Observer las transiciones que confirme.
func (m *Monitor) PollOnce(ctx context.Context) {
	at := m.now()
	state, err := m.source.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		state = domain.StateUnknown
		m.recordFailure(err)
	} else {
		m.recordSuccess()
	}
	m.metrics.ObservePoll(err == nil)

	events := m.debouncer.Observe(domain.Reading{State: state, At: at})
	for _, ev := range events {
		slog.Info("game state changed", "from", ev.From, "to", ev.To, "at", ev.Timestamp.Format(time.RFC3339))
		m.metrics.ObserveTransition(ev)
		m.mu.Lock()
		m.status.Confirmed = ev.To
		m.status.LastChangeAt = ev.Timestamp
		m.mu.Unlock()
		m.observer.OnTransition(ev)
	}

	m.mu.Lock()
	m.status.LastPollAt = at
	m.mu.Unlock()

	m.updatePending()
}

// Status devuelve un snapshot del estado del Monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) updatePending() {
	candidate, pending := m.debouncer.Pending()
	if pending == m.pending && candidate == m.pendingWhat {
		return
	}
	if m.pending && (!pending || candidate != m.pendingWhat) {
		m.observer.OnPending(m.pendingWhat, false)
	}
	if pending {
		m.observer.OnPending(candidate, true)
	}
	m.pending = pending
	m.pendingWhat = candidate
}

func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	m.status.Failures++
	failures := m.status.Failures
	enterDegraded := !m.status.Degraded && failures >= m.cfg.FailureThreshold
	if enterDegraded {
		m.status.Degraded = true
	}
	m.mu.Unlock()

	if failures == 1 {
		slog.Warn("game client poll failed", "err", err)
	} else {
		slog.Debug("game client poll failed", "err", err, "consecutive", failures)
	}

	if enterDegraded {
		slog.Warn("game client unreachable, entering degraded mode", "consecutive_failures", failures)
		m.metrics.ObserveDegraded(true)
		m.observer.OnHealthChange(true)
	}
}

func (m *Monitor) recordSuccess() {
	m.mu.Lock()
	wasDegraded := m.status.Degraded
	m.status.Failures = 0
	m.status.Degraded = false
	m.mu.Unlock()

	if wasDegraded {
		slog.Info("game client reachable again, leaving degraded mode")
		m.metrics.ObserveDegraded(false)
		m.observer.OnHealthChange(false)
	}
}
