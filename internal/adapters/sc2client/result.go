package sc2client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// LocalResults implementa ports.ResultFinder leyendo el resultado del propio
// cliente del juego. Se usa cuando el servicio de replays está deshabilitado.
type LocalResults struct {
	client   *Client
	interval time.Duration
	ceiling  time.Duration
}

// NewLocalResults crea el fallback de resultados locales.
func NewLocalResults(client *Client, interval, ceiling time.Duration) *LocalResults {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	return &LocalResults{client: client, interval: interval, ceiling: ceiling}
}

// AwaitResult consulta /game hasta que el jugador local tenga un resultado decidido.
func (l *LocalResults) AwaitResult(ctx context.Context, gameID string, gameEnd time.Time) (domain.MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.ceiling)
	defer cancel()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		outcome, decided, isReplay, err := l.client.LastOutcome(ctx)
		switch {
		case err != nil:
			slog.Debug("local result not available", "game_id", gameID, "err", err)
		case isReplay:
			return domain.MatchResult{}, fmt.Errorf("sc2client.AwaitResult: last game is a replay: %w", domain.ErrNotYetAvailable)
		case decided:
			return domain.MatchResult{
				Outcome:        outcome,
				MatchTimestamp: gameEnd,
				SourceRecordID: "local:" + gameID,
			}, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return domain.MatchResult{}, fmt.Errorf("sc2client.AwaitResult: %w", domain.ErrNotYetAvailable)
			}
			return domain.MatchResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
