package ports

import (
	"context"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// SummaryWriter publica el resumen de la última partida para el overlay del stream.
type SummaryWriter interface {
	// WriteSummary sobreescribe el overlay con el resultado dado.
	WriteSummary(ctx context.Context, result domain.MatchResult) error

	// Clear vacía el overlay (al empezar una partida nueva).
	Clear(ctx context.Context) error
}
