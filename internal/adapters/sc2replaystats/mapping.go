package sc2replaystats

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// La API usa "%Y-%m-%dT%H:%M:%S%z" (offset sin dos puntos).
const replayDateLayout = "2006-01-02T15:04:05-0700"

var races = map[string]string{
	"P": "Protoss",
	"T": "Terran",
	"Z": "Zerg",
}

func parseReplayDate(s string) (time.Time, error) {
	if t, err := time.Parse(replayDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// toRecord normaliza un last-replay. accountIDs son los players_id de la cuenta;
// si ninguno juega en el replay el outcome queda UNKNOWN.
func toRecord(r lastReplay, accountIDs map[string]bool) (domain.ReplayRecord, error) {
	ended, err := parseReplayDate(r.ReplayDate)
	if err != nil {
		return domain.ReplayRecord{}, fmt.Errorf("replay_date %q: %w", r.ReplayDate, domain.ErrMalformedResponse)
	}
	if r.GameLength == nil || r.MapName == "" {
		return domain.ReplayRecord{}, fmt.Errorf("missing map_name/game_length: %w", domain.ErrMalformedResponse)
	}

	rec := domain.ReplayRecord{
		ID:      string(r.ReplayID),
		EndedAt: ended,
		Outcome: domain.OutcomeUnknown,
		Summary: domain.ReplaySummary{
			MapName:    r.MapName,
			GameLength: time.Duration(*r.GameLength) * time.Second,
			Players:    make([]domain.ReplayPlayer, 0, len(r.Players)),
		},
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%s@%d", r.MapName, ended.Unix())
	}

	for _, p := range r.Players {
		race, ok := races[p.Race]
		if !ok {
			return domain.ReplayRecord{}, fmt.Errorf("race %q: %w", p.Race, domain.ErrMalformedResponse)
		}
		winner := p.Winner == 1
		rec.Summary.Players = append(rec.Summary.Players, domain.ReplayPlayer{
			Name:   p.Player.Name,
			Race:   race,
			MMR:    p.MMR,
			APM:    p.APM,
			Winner: winner,
		})
		if accountIDs[string(p.Player.ID)] && rec.Outcome == domain.OutcomeUnknown {
			if winner {
				rec.Outcome = domain.OutcomeWin
			} else {
				rec.Outcome = domain.OutcomeLoss
			}
		}
	}
	return rec, nil
}
