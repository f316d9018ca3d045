package ports

import (
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// Metrics recibe los contadores de cada componente.
type Metrics interface {
	ObservePoll(ok bool)
	ObserveTransition(ev domain.StateTransitionEvent)
	ObserveDegraded(degraded bool)
	ObserveSceneSwitch(scene string, err error)
	ObservePrediction(status domain.PredictionStatus)
	ObserveCorrelation(outcome domain.Outcome, elapsed time.Duration, err error)
	ObserveTokenRefresh(err error)
}

// NopMetrics descarta todas las observaciones.
type NopMetrics struct{}

func (NopMetrics) ObservePoll(bool)                                        {}
func (NopMetrics) ObserveTransition(domain.StateTransitionEvent)           {}
func (NopMetrics) ObserveDegraded(bool)                                    {}
func (NopMetrics) ObserveSceneSwitch(string, error)                        {}
func (NopMetrics) ObservePrediction(domain.PredictionStatus)               {}
func (NopMetrics) ObserveCorrelation(domain.Outcome, time.Duration, error) {}
func (NopMetrics) ObserveTokenRefresh(error)                               {}
