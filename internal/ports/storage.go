package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// ReplayLedger recuerda qué registros de replay ya se asignaron a una partida.
type ReplayLedger interface {
	IsConsumed(ctx context.Context, recordID string) (bool, error)
	MarkConsumed(ctx context.Context, recordID, gameID string, at time.Time) error
}

// PredictionHistory persiste las sesiones de predicción terminadas.
type PredictionHistory interface {
	SavePrediction(ctx context.Context, session domain.PredictionSession) error
}

// CredentialStore persiste la credencial renovada entre reinicios.
type CredentialStore interface {
	// LoadCredential devuelve la credencial guardada que desciende de seedRefreshToken.
	// ok=false si no hay ninguna o si el refresh token configurado cambió.
	LoadCredential(ctx context.Context, clientID, seedRefreshToken string) (cred domain.Credential, ok bool, err error)
	SaveCredential(ctx context.Context, clientID, seedRefreshToken string, cred domain.Credential) error
}
