package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/alejandrodnm/scenebot/internal/ports"
)

// Config controla el Refresher.
type Config struct {
	ClientID string
	Margin   time.Duration // refrescar cuando falte menos que esto para expirar
}

// Refresher es el único que modifica la credencial del mercado de predicciones.
// Quien la lee recibe una copia por llamada y nunca ve un token a medio refrescar.
type Refresher struct {
	cfg       Config
	exchanger ports.TokenExchanger
	store     ports.CredentialStore
	metrics   ports.Metrics
	now       func() time.Time

	seed string // refresh token configurado; identifica la cadena de credenciales persistidas

	mu   sync.Mutex
	cred domain.Credential
}

// New crea un Refresher con la credencial configurada. store y metrics pueden ser nil.
func New(cfg Config, initial domain.Credential, exchanger ports.TokenExchanger, store ports.CredentialStore, metrics ports.Metrics) *Refresher {
	if cfg.Margin <= 0 {
		cfg.Margin = 5 * time.Minute
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Refresher{
		cfg:       cfg,
		exchanger: exchanger,
		store:     store,
		metrics:   metrics,
		now:       time.Now,
		seed:      initial.RefreshToken,
		cred:      initial,
	}
}

// Restore sustituye la credencial configurada por la persistida, si la hay y
// desciende del mismo refresh token configurado.
func (r *Refresher) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	cred, ok, err := r.store.LoadCredential(ctx, r.cfg.ClientID, r.seed)
	if err != nil {
		return fmt.Errorf("auth.Restore: %w", err)
	}
	if !ok {
		return nil
	}

	r.mu.Lock()
	r.cred = cred
	r.mu.Unlock()
	slog.Info("restored persisted market credential", "expires_at", cred.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Snapshot devuelve una copia de la credencial actual.
func (r *Refresher) Snapshot() domain.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cred
}

// GetValidToken devuelve un access token que no expira dentro del margen,
// refrescándolo antes si hace falta. Una expiración desconocida fuerza el refresco.
func (r *Refresher) GetValidToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cred.NeedsRefresh(r.now(), r.cfg.Margin) {
		return r.cred.AccessToken, nil
	}
	if err := r.refreshLocked(ctx); err != nil {
		return "", err
	}
	return r.cred.AccessToken, nil
}

// ForceRefresh refresca tras un rechazo del token stale. Si otro llamador ya lo
// sustituyó, devuelve el nuevo sin volver a refrescar.
func (r *Refresher) ForceRefresh(ctx context.Context, stale string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cred.AccessToken != stale && !r.cred.NeedsRefresh(r.now(), r.cfg.Margin) {
		return r.cred.AccessToken, nil
	}
	if err := r.refreshLocked(ctx); err != nil {
		return "", err
	}
	return r.cred.AccessToken, nil
}

// Do ejecuta call con un token válido. Si call falla con domain.ErrUnauthorized
// fuerza un refresco y la reintenta exactamente una vez; un segundo rechazo se
// devuelve al llamador.
func (r *Refresher) Do(ctx context.Context, call func(ctx context.Context, token string) error) error {
	token, err := r.GetValidToken(ctx)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	slog.Warn("market rejected token, forcing refresh")
	token, rerr := r.ForceRefresh(ctx, token)
	if rerr != nil {
		return fmt.Errorf("auth.Do: %w (after: %v)", rerr, err)
	}
	return call(ctx, token)
}

func (r *Refresher) refreshLocked(ctx context.Context) error {
	if r.cred.RefreshToken == "" {
		err := fmt.Errorf("auth.refresh: no refresh token configured: %w", domain.ErrUnauthorized)
		r.metrics.ObserveTokenRefresh(err)
		return err
	}

	cred, err := r.exchanger.Refresh(ctx, r.cred.RefreshToken)
	r.metrics.ObserveTokenRefresh(err)
	if err != nil {
		return fmt.Errorf("auth.refresh: %w", err)
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = r.cred.RefreshToken
	}
	r.cred = cred

	slog.Info("market token refreshed", "expires_at", cred.ExpiresAt.Format(time.RFC3339))

	if r.store != nil {
		if err := r.store.SaveCredential(ctx, r.cfg.ClientID, r.seed, cred); err != nil {
			slog.Warn("could not persist refreshed credential", "err", err)
		}
	}
	return nil
}
