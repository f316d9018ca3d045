package domain

import "time"

// PredictionStatus es el estado local de una PredictionSession.
type PredictionStatus string

const (
	PredictionNone           PredictionStatus = "NONE"
	PredictionActive         PredictionStatus = "ACTIVE"
	PredictionAwaitingResult PredictionStatus = "AWAITING_RESULT"
	PredictionResolving      PredictionStatus = "RESOLVING"
	PredictionResolved       PredictionStatus = "RESOLVED"
	PredictionFailed         PredictionStatus = "FAILED"

	// PredictionCanceledExternally: la plataforma canceló la predicción antes
	// de que tuviéramos resultado (p.ej. expiró del lado del servidor).
	PredictionCanceledExternally PredictionStatus = "CANCELED_EXTERNALLY"
)

// Terminal devuelve true si la sesión ya no requiere ninguna acción.
func (s PredictionStatus) Terminal() bool {
	switch s {
	case PredictionResolved, PredictionFailed, PredictionCanceledExternally:
		return true
	}
	return false
}

// Open devuelve true para los estados que cuentan como sesión en vuelo.
func (s PredictionStatus) Open() bool {
	switch s {
	case PredictionActive, PredictionAwaitingResult, PredictionResolving:
		return true
	}
	return false
}

// PredictionSession es la predicción asociada a una partida.
// Solo PredictionManager la modifica.
type PredictionSession struct {
	GameID        string // ID local de la partida (uuid)
	ID            string // ID asignado por el mercado
	Title         string
	CreatedAt     time.Time
	Status        PredictionStatus
	Outcome       Outcome
	WinOutcomeID  string
	LossOutcomeID string
	FinishedAt    time.Time
	Reason        string // motivo del estado terminal, para el histórico
}

// RemoteStatus es el estado de la predicción según la plataforma.
type RemoteStatus string

const (
	RemoteActive   RemoteStatus = "ACTIVE"
	RemoteLocked   RemoteStatus = "LOCKED"
	RemoteResolved RemoteStatus = "RESOLVED"
	RemoteCanceled RemoteStatus = "CANCELED"
)

// PredictionOutcome es una de las dos opciones de la predicción.
type PredictionOutcome struct {
	ID    string
	Title string
}

// RemotePrediction es la predicción tal como la devuelve el mercado.
type RemotePrediction struct {
	ID               string
	Title            string
	Status           RemoteStatus
	Outcomes         []PredictionOutcome
	WinningOutcomeID string
	CreatedAt        time.Time
}

// OutcomeID busca el ID de la opción con el título dado.
func (p RemotePrediction) OutcomeID(title string) string {
	for _, o := range p.Outcomes {
		if o.Title == title {
			return o.ID
		}
	}
	return ""
}

// PredictionRequest son los parámetros para crear una predicción.
type PredictionRequest struct {
	Title         string
	WinOption     string
	LossOption    string
	WindowSeconds int
}
