package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// ReplayProvider obtiene los registros de partidas más recientes del servicio de replays.
type ReplayProvider interface {
	RecentReplays(ctx context.Context) ([]domain.ReplayRecord, error)
}

// ResultFinder espera el resultado de una partida terminada.
// Lo implementan el correlador de replays y el fallback del cliente local.
type ResultFinder interface {
	AwaitResult(ctx context.Context, gameID string, gameEnd time.Time) (domain.MatchResult, error)
}
