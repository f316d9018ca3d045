package gamestate_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/scenebot/internal/application/gamestate"
	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type scriptedSource struct {
	states []domain.GameState // StateUnknown = devolver error
	i      int
}

func (s *scriptedSource) Poll(_ context.Context) (domain.GameState, error) {
	st := s.states[s.i]
	if s.i < len(s.states)-1 {
		s.i++
	}
	if st == domain.StateUnknown {
		return "", domain.ErrClientUnavailable
	}
	return st, nil
}

type recordingObserver struct {
	transitions []domain.StateTransitionEvent
	pending     []bool
	health      []bool
}

func (o *recordingObserver) OnTransition(ev domain.StateTransitionEvent) {
	o.transitions = append(o.transitions, ev)
}

func (o *recordingObserver) OnPending(_ domain.GameState, pending bool) {
	o.pending = append(o.pending, pending)
}

func (o *recordingObserver) OnHealthChange(degraded bool) {
	o.health = append(o.health, degraded)
}

func pollN(m *gamestate.Monitor, n int) {
	for i := 0; i < n; i++ {
		m.PollOnce(context.Background())
	}
}

func TestMonitor_EmitsConfirmedTransitions(t *testing.T) {
	src := &scriptedSource{states: []domain.GameState{
		domain.StateMenu, domain.StateInGame, domain.StateInGame, domain.StateInGame,
		domain.StateMenu, domain.StateMenu,
	}}
	obs := &recordingObserver{}
	m := gamestate.New(gamestate.Config{Confirmations: 2, FailureThreshold: 3}, src, obs, nil)

	pollN(m, 6)

	require.Len(t, obs.transitions, 2)
	assert.Equal(t, domain.StateInGame, obs.transitions[0].To)
	assert.Equal(t, domain.StateMenu, obs.transitions[1].To)
	assert.Equal(t, []bool{true, false}, obs.pending, "carga mostrada y retirada una vez")
	assert.Equal(t, domain.StateMenu, m.Status().Confirmed)
	assert.Empty(t, obs.health)
}

func TestMonitor_FailuresNeverTransition(t *testing.T) {
	src := &scriptedSource{states: []domain.GameState{
		domain.StateInGame, domain.StateUnknown, domain.StateInGame, domain.StateUnknown, domain.StateInGame,
	}}
	obs := &recordingObserver{}
	m := gamestate.New(gamestate.Config{Confirmations: 2, FailureThreshold: 5}, src, obs, nil)

	pollN(m, 5)

	assert.Empty(t, obs.transitions)
	assert.Equal(t, 0, m.Status().Failures)
}

func TestMonitor_DegradedModeAfterThreshold(t *testing.T) {
	src := &scriptedSource{states: []domain.GameState{
		domain.StateUnknown, domain.StateUnknown, domain.StateUnknown, domain.StateUnknown, domain.StateMenu,
	}}
	obs := &recordingObserver{}
	m := gamestate.New(gamestate.Config{Confirmations: 2, FailureThreshold: 3}, src, obs, nil)

	pollN(m, 3)
	assert.Equal(t, []bool{true}, obs.health)
	assert.True(t, m.Status().Degraded)

	pollN(m, 1)
	assert.Equal(t, []bool{true}, obs.health, "solo se avisa una vez")

	pollN(m, 1)
	assert.Equal(t, []bool{true, false}, obs.health)
	assert.False(t, m.Status().Degraded)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{states: []domain.GameState{domain.StateMenu}}
	m := gamestate.New(gamestate.DefaultConfig(), src, &recordingObserver{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Run(ctx)
	assert.NoError(t, err)
}
