package domain

import "time"

// Outcome es el resultado de la partida desde el punto de vista del streamer.
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// MatchResult es un resultado correlacionado con una partida terminada.
// Inmutable una vez creado.
type MatchResult struct {
	Outcome        Outcome
	MatchTimestamp time.Time
	SourceRecordID string
	Summary        *ReplaySummary // nil si la fuente no da estadísticas
}

// ReplaySummary contiene lo necesario para el overlay "LAST GAME".
type ReplaySummary struct {
	MapName    string
	GameLength time.Duration
	Players    []ReplayPlayer
}

// ReplayPlayer es una fila del overlay.
type ReplayPlayer struct {
	Name   string
	Race   string
	MMR    int
	APM    int
	Winner bool
}

// ReplayRecord es un registro del servicio de replays, ya normalizado.
type ReplayRecord struct {
	ID      string
	EndedAt time.Time
	Outcome Outcome
	Summary ReplaySummary
}

// Result convierte el registro en un MatchResult.
func (r ReplayRecord) Result() MatchResult {
	summary := r.Summary
	return MatchResult{
		Outcome:        r.Outcome,
		MatchTimestamp: r.EndedAt,
		SourceRecordID: r.ID,
		Summary:        &summary,
	}
}
