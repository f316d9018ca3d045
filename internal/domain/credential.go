package domain

import "time"

// Credential es el par de tokens OAuth del mercado de predicciones.
// Se pasa por valor: quien la lee obtiene una copia inmutable.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // cero = desconocido
}

// NeedsRefresh devuelve true si el token expira antes de now+margin o si
// la expiración es desconocida.
func (c Credential) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return true
	}
	return now.After(c.ExpiresAt.Add(-margin))
}
