// Package metrics expone los contadores del bot en formato Prometheus y un
// pequeño servidor HTTP de estado.
package metrics

import (
	"errors"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implementa ports.Metrics sobre un registry propio.
type Prometheus struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	degraded       prometheus.Gauge
	sceneSwitches  *prometheus.CounterVec
	predictions    *prometheus.CounterVec
	correlations   *prometheus.CounterVec
	correlationLag prometheus.Histogram
	tokenRefreshes *prometheus.CounterVec
}

// NewPrometheus crea y registra todos los collectors.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	m := &Prometheus{
		registry: registry,
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_game_polls_total",
				Help: "Polls to the game client, by result",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_state_transitions_total",
				Help: "Confirmed game state transitions",
			},
			[]string{"from", "to"},
		),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scenebot_monitor_degraded",
			Help: "1 while the game client has been unreachable past the failure threshold",
		}),
		sceneSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_scene_switches_total",
				Help: "Scene switch attempts, by scene and result",
			},
			[]string{"scene", "result"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_prediction_transitions_total",
				Help: "Prediction sessions entering each status",
			},
			[]string{"status"},
		),
		correlations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_result_correlations_total",
				Help: "Result lookups after a game, by outcome",
			},
			[]string{"outcome"},
		),
		correlationLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenebot_result_correlation_seconds",
			Help:    "Time from game end until its result was found",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1s a ~17min
		}),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenebot_token_refreshes_total",
				Help: "OAuth token refreshes, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.polls,
		m.transitions,
		m.degraded,
		m.sceneSwitches,
		m.predictions,
		m.correlations,
		m.correlationLag,
		m.tokenRefreshes,
	)
	return m
}

// Registry devuelve el registry para el handler HTTP.
func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Prometheus) ObservePoll(ok bool) {
	m.polls.WithLabelValues(okLabel(ok)).Inc()
}

func (m *Prometheus) ObserveTransition(ev domain.StateTransitionEvent) {
	m.transitions.WithLabelValues(string(ev.From), string(ev.To)).Inc()
}

func (m *Prometheus) ObserveDegraded(degraded bool) {
	if degraded {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}

func (m *Prometheus) ObserveSceneSwitch(scene string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrSceneRejected):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	m.sceneSwitches.WithLabelValues(scene, result).Inc()
}

func (m *Prometheus) ObservePrediction(status domain.PredictionStatus) {
	m.predictions.WithLabelValues(string(status)).Inc()
}

// ObserveCorrelation cuenta el resultado. Los errores (timeout incluido) van
// con outcome "none" y no entran en el histograma.
func (m *Prometheus) ObserveCorrelation(outcome domain.Outcome, elapsed time.Duration, err error) {
	if err != nil {
		m.correlations.WithLabelValues("none").Inc()
		return
	}
	m.correlations.WithLabelValues(string(outcome)).Inc()
	m.correlationLag.Observe(elapsed.Seconds())
}

func (m *Prometheus) ObserveTokenRefresh(err error) {
	m.tokenRefreshes.WithLabelValues(okLabel(err == nil)).Inc()
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
