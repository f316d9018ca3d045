package domain

import "errors"

var (
	// ErrUnauthorized: el mercado rechazó el token (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotYetAvailable: todavía no hay un registro de replay que correlacione.
	ErrNotYetAvailable = errors.New("result not yet available")
	// ErrMalformedResponse: la API devolvió algo que no podemos interpretar.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrClientUnavailable: el cliente del juego no responde (no está abierto).
	ErrClientUnavailable = errors.New("game client unavailable")
	// ErrSceneDisconnected: se perdió la conexión con el software de streaming.
	ErrSceneDisconnected = errors.New("scene controller disconnected")
	// ErrSceneRejected: el software de streaming rechazó el comando (p.ej. escena inexistente).
	ErrSceneRejected = errors.New("scene command rejected")
)
