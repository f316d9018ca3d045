package ports

import (
	"context"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// PredictionMarket es la API de predicciones de la plataforma de streaming.
// Todas las llamadas reciben el token explícitamente: quien llama obtiene una
// copia del token vigente antes de cada request.
type PredictionMarket interface {
	CreatePrediction(ctx context.Context, token string, req domain.PredictionRequest) (domain.RemotePrediction, error)
	GetPrediction(ctx context.Context, token, id string) (domain.RemotePrediction, error)

	// LatestPrediction devuelve la predicción más reciente del canal, si hay alguna.
	LatestPrediction(ctx context.Context, token string) (domain.RemotePrediction, bool, error)

	// EndPrediction cambia el estado remoto: RESOLVED (con winningOutcomeID),
	// CANCELED (devuelve los puntos) o LOCKED.
	EndPrediction(ctx context.Context, token, id string, status domain.RemoteStatus, winningOutcomeID string) (domain.RemotePrediction, error)
}

// TokenExchanger canjea un refresh token por una credencial nueva.
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (domain.Credential, error)
}

// Authorizer ejecuta una llamada al mercado con un token válido.
// Implementado por auth.Refresher.
type Authorizer interface {
	Do(ctx context.Context, call func(ctx context.Context, token string) error) error
}
