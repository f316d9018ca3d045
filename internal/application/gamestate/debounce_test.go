package gamestate

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func readings(states ...domain.GameState) []domain.Reading {
	out := make([]domain.Reading, len(states))
	for i, s := range states {
		out[i] = domain.Reading{State: s, At: t0.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func feed(d *Debouncer, rs []domain.Reading) []domain.StateTransitionEvent {
	var events []domain.StateTransitionEvent
	for _, r := range rs {
		events = append(events, d.Observe(r)...)
	}
	return events
}

func TestDecide(t *testing.T) {
	menu, game := domain.StateMenu, domain.StateInGame

	_, ok := Decide(readings(game), menu, 2)
	assert.False(t, ok, "menos de K lecturas")

	got, ok := Decide(readings(menu, game, game), menu, 2)
	require.True(t, ok)
	assert.Equal(t, game, got)

	_, ok = Decide(readings(game, menu), menu, 2)
	assert.False(t, ok)

	_, ok = Decide(readings(game, game), game, 2)
	assert.False(t, ok, "igual al confirmado")

	_, ok = Decide(readings(domain.StateUnknown, domain.StateUnknown), menu, 2)
	assert.False(t, ok, "UNKNOWN nunca se confirma")
}

func TestDebouncer_SingleTickNoise(t *testing.T) {
	d := NewDebouncer(2)
	events := feed(d, readings(
		domain.StateMenu, domain.StateInGame, domain.StateMenu,
		domain.StateWatchingReplay, domain.StateMenu, domain.StateUnknown, domain.StateMenu,
	))
	assert.Empty(t, events)
	assert.Equal(t, domain.StateMenu, d.Confirmed())
}

func TestDebouncer_ConfirmsAfterK(t *testing.T) {
	d := NewDebouncer(3)
	rs := readings(domain.StateMenu, domain.StateInGame, domain.StateInGame, domain.StateInGame, domain.StateInGame)

	assert.Empty(t, d.Observe(rs[0]))
	assert.Empty(t, d.Observe(rs[1]))
	assert.Empty(t, d.Observe(rs[2]))
	events := d.Observe(rs[3])
	require.Len(t, events, 1)
	assert.Equal(t, domain.StateMenu, events[0].From)
	assert.Equal(t, domain.StateInGame, events[0].To)
	assert.True(t, rs[1].At.Equal(events[0].Timestamp), "el evento lleva el inicio de la racha")

	assert.Empty(t, d.Observe(rs[4]))
}

func TestDebouncer_GameToReplaySplitsThroughMenu(t *testing.T) {
	d := NewDebouncer(2)
	events := feed(d, readings(
		domain.StateInGame, domain.StateInGame,
		domain.StateWatchingReplay, domain.StateWatchingReplay,
	))
	require.Len(t, events, 3)
	assert.Equal(t, domain.StateInGame, events[0].To)
	assert.Equal(t, domain.StateMenu, events[1].To)
	assert.Equal(t, domain.StateInGame, events[1].From)
	assert.Equal(t, domain.StateWatchingReplay, events[2].To)
	assert.True(t, events[2].Timestamp.After(events[1].Timestamp))
}

func TestDebouncer_Pending(t *testing.T) {
	d := NewDebouncer(3)
	d.Observe(domain.Reading{State: domain.StateInGame, At: t0})
	cand, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, domain.StateInGame, cand)

	d.Observe(domain.Reading{State: domain.StateMenu, At: t0.Add(time.Second)})
	_, ok = d.Pending()
	assert.False(t, ok)
}

// Para cualquier secuencia con ruido, se emite una transición si y solo si
// las K últimas lecturas coinciden en un estado distinto del confirmado.
func TestDebouncer_RandomFlickerProperty(t *testing.T) {
	states := []domain.GameState{domain.StateMenu, domain.StateInGame, domain.StateWatchingReplay, domain.StateUnknown}

	for seed := uint64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		k := 2 + rng.IntN(3)
		d := NewDebouncer(k)

		var history []domain.GameState
		confirmed := domain.StateMenu
		var lastTS time.Time
		lastEntering := false

		current := domain.StateMenu
		for i := 0; i < 300; i++ {
			// Cambios de fondo ocasionales más ruido de un solo tick.
			if rng.IntN(20) == 0 {
				current = states[rng.IntN(3)]
			}
			s := current
			if rng.IntN(4) == 0 {
				s = states[rng.IntN(len(states))]
			}
			history = append(history, s)

			events := d.Observe(domain.Reading{State: s, At: t0.Add(time.Duration(i) * time.Second)})

			agree := len(history) >= k
			if agree {
				for _, h := range history[len(history)-k:] {
					if h != s {
						agree = false
						break
					}
				}
			}
			expectChange := agree && s.Known() && s != confirmed

			if !expectChange {
				require.Empty(t, events, "seed=%d i=%d", seed, i)
				continue
			}
			require.NotEmpty(t, events, "seed=%d i=%d", seed, i)
			assert.Equal(t, s, events[len(events)-1].To)
			for _, ev := range events {
				require.True(t, ev.Timestamp.After(lastTS), "timestamps estrictamente crecientes")
				lastTS = ev.Timestamp
				require.NotEqual(t, lastEntering, ev.Entering(), "las clases se alternan")
				lastEntering = ev.Entering()
			}
			confirmed = s
		}
	}
}
