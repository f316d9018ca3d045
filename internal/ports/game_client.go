package ports

import (
	"context"

	"github.com/alejandrodnm/scenebot/internal/domain"
)

// GameStateSource lee el estado actual del cliente del juego.
type GameStateSource interface {
	// Poll devuelve la lectura cruda actual. Un error significa "desconocido":
	// el cliente no está abierto o la respuesta no se pudo interpretar.
	Poll(ctx context.Context) (domain.GameState, error)
}
