package twitch

import (
	"fmt"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// mapPrediction convierte el DTO de Helix a domain.RemotePrediction.
func mapPrediction(p helixPrediction) domain.RemotePrediction {
	out := domain.RemotePrediction{
		ID:        p.ID,
		Title:     p.Title,
		Status:    domain.RemoteStatus(p.Status),
		CreatedAt: p.CreatedAt,
		Outcomes:  make([]domain.PredictionOutcome, 0, len(p.Outcomes)),
	}
	if p.WinningOutcomeID != nil {
		out.WinningOutcomeID = *p.WinningOutcomeID
	}
	for _, o := range p.Outcomes {
		out.Outcomes = append(out.Outcomes, domain.PredictionOutcome{ID: o.ID, Title: o.Title})
	}
	return out
}

// firstPrediction devuelve el único elemento que Helix devuelve en data.
func firstPrediction(resp predictionsResponse) (domain.RemotePrediction, error) {
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return domain.RemotePrediction{}, fmt.Errorf("empty prediction data: %w", domain.ErrMalformedResponse)
	}
	return mapPrediction(resp.Data[0]), nil
}
