package ports

import "context"

// SceneSwitcher controla el software de streaming por una conexión persistente.
type SceneSwitcher interface {
	// Connect abre (o reabre) la conexión de control.
	Connect(ctx context.Context) error

	// SetScene cambia la escena de programa. Devuelve domain.ErrSceneDisconnected
	// si la conexión se cayó y domain.ErrSceneRejected si la escena no existe.
	SetScene(ctx context.Context, name string) error

	// ListScenes devuelve los nombres de las escenas configuradas.
	ListScenes(ctx context.Context) ([]string, error)

	Close() error
}
