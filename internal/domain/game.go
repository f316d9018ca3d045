package domain

import "time"

// GameState es la fase detectada del cliente del juego.
type GameState string

const (
	StateMenu           GameState = "MENU"
	StateInGame         GameState = "IN_GAME"
	StateWatchingReplay GameState = "WATCHING_REPLAY"

	// StateUnknown solo aparece como lectura cruda (poll fallido). Nunca se confirma.
	StateUnknown GameState = "UNKNOWN"
)

// InGame devuelve true para los estados que muestran una partida (real o replay).
func (s GameState) InGame() bool {
	return s == StateInGame || s == StateWatchingReplay
}

// Known devuelve true si el estado es uno de los tres estados confirmables.
func (s GameState) Known() bool {
	switch s {
	case StateMenu, StateInGame, StateWatchingReplay:
		return true
	}
	return false
}

// Reading es una lectura cruda del cliente del juego.
type Reading struct {
	State GameState
	At    time.Time
}

// StateTransitionEvent se produce una sola vez por transición confirmada.
type StateTransitionEvent struct {
	From      GameState
	To        GameState
	Timestamp time.Time
}

// Entering devuelve true si la transición entra en una partida o replay.
func (e StateTransitionEvent) Entering() bool {
	return e.To.InGame()
}

// Leaving devuelve true si la transición vuelve al menú.
func (e StateTransitionEvent) Leaving() bool {
	return e.To == StateMenu
}

// StartsMatch devuelve true si la transición empieza una partida real (no replay).
func (e StateTransitionEvent) StartsMatch() bool {
	return e.To == StateInGame
}

// EndsMatch devuelve true si la transición termina una partida real (no replay).
func (e StateTransitionEvent) EndsMatch() bool {
	return e.From == StateInGame && e.To == StateMenu
}
