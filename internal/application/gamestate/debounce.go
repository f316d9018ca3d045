package gamestate

import (
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// Decide es el detector puro: devuelve el nuevo estado confirmado si las k
// lecturas más recientes de window coinciden en un estado conocido distinto
// de confirmed. window está ordenada de la más antigua a la más reciente.
func Decide(window []domain.Reading, confirmed domain.GameState, k int) (domain.GameState, bool) {
	if k < 1 || len(window) < k {
		return confirmed, false
	}
	recent := window[len(window)-k:]
	candidate := recent[0].State
	if !candidate.Known() || candidate == confirmed {
		return confirmed, false
	}
	for _, r := range recent[1:] {
		if r.State != candidate {
			return confirmed, false
		}
	}
	return candidate, true
}

// Debouncer mantiene la ventana de las últimas K lecturas y el último estado
// confirmado. No es seguro para uso concurrente: lo usa solo el loop del Monitor.
type Debouncer struct {
	k         int
	window    []domain.Reading
	confirmed domain.GameState
	lastEvent time.Time
}

// NewDebouncer crea un Debouncer con K confirmaciones. El estado inicial es MENU.
func NewDebouncer(k int) *Debouncer {
	if k < 2 {
		k = 2
	}
	return &Debouncer{
		k:         k,
		window:    make([]domain.Reading, 0, k),
		confirmed: domain.StateMenu,
	}
}

// Observe añade una lectura cruda y devuelve las transiciones confirmadas.
// Un cambio directo IN_GAME <-> WATCHING_REPLAY se reporta como salida a MENU
// seguida de entrada, para que las clases de evento sigan alternándose.
func (d *Debouncer) Observe(r domain.Reading) []domain.StateTransitionEvent {
	if len(d.window) == d.k {
		copy(d.window, d.window[1:])
		d.window = d.window[:d.k-1]
	}
	d.window = append(d.window, r)

	next, ok := Decide(d.window, d.confirmed, d.k)
	if !ok {
		return nil
	}

	// Timestamp = inicio de la racha que confirmó el cambio.
	at := d.window[len(d.window)-d.k].At

	var events []domain.StateTransitionEvent
	if d.confirmed.InGame() && next.InGame() {
		events = append(events, d.emit(d.confirmed, domain.StateMenu, at))
		d.confirmed = domain.StateMenu
	}
	events = append(events, d.emit(d.confirmed, next, at))
	d.confirmed = next
	return events
}

func (d *Debouncer) emit(from, to domain.GameState, at time.Time) domain.StateTransitionEvent {
	if !at.After(d.lastEvent) {
		at = d.lastEvent.Add(time.Nanosecond)
	}
	d.lastEvent = at
	return domain.StateTransitionEvent{From: from, To: to, Timestamp: at}
}

// Confirmed devuelve el último estado confirmado.
func (d *Debouncer) Confirmed() domain.GameState {
	return d.confirmed
}

// Pending devuelve el estado de juego que se está formando desde el menú y
// todavía no está confirmado (pantalla de carga).
func (d *Debouncer) Pending() (domain.GameState, bool) {
	if len(d.window) == 0 || d.confirmed != domain.StateMenu {
		return "", false
	}
	last := d.window[len(d.window)-1].State
	if !last.InGame() {
		return "", false
	}
	return last, true
}
