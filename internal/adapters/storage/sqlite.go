package storage

// sqlite.go: estado que tiene que sobrevivir a un reinicio.
//
//   - `consumed_replays`: un registro de replay asignado a una partida no se
//     vuelve a asignar a otra. Cache en memoria para no ir a disco en cada poll.
//   - `prediction_history`: una fila por sesión terminada, para /status y auditoría.
//   - `credentials`: la última credencial OAuth renovada, indexada por client_id.
//     El hash del refresh token configurado (seed) invalida la fila si cambia.
//   - Prune automático al arrancar: replays > 30d, histórico > 90d.

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS consumed_replays (
    record_id   TEXT PRIMARY KEY,
    game_id     TEXT NOT NULL,
    consumed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prediction_history (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id       TEXT NOT NULL,
    prediction_id TEXT,
    title         TEXT,
    status        TEXT NOT NULL,
    outcome       TEXT,
    reason        TEXT,
    created_at    TEXT,
    finished_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
    client_id     TEXT PRIMARY KEY,
    seed_hash     TEXT NOT NULL,
    access_token  TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at    TEXT,
    updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consumed_at ON consumed_replays(consumed_at);
CREATE INDEX IF NOT EXISTS idx_hist_finish ON prediction_history(finished_at DESC);
`

const (
	retentionReplays = 30 * 24 * time.Hour
	retentionHistory = 90 * 24 * time.Hour

	timeLayout = time.RFC3339Nano
)

// SQLiteStorage implementa ports.ReplayLedger, ports.PredictionHistory y
// ports.CredentialStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db       *sql.DB
	consumed map[string]bool // recordID → ya asignado
	mu       sync.Mutex
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema, limpia datos antiguos y precarga la cache.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:       db,
		consumed: make(map[string]bool),
	}
	s.pruneOld(context.Background(), time.Now())
	s.warmCache(context.Background())
	return s, nil
}

// IsConsumed indica si el registro ya se asignó a alguna partida.
func (s *SQLiteStorage) IsConsumed(_ context.Context, recordID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed[recordID], nil
}

// MarkConsumed asigna el registro a la partida. Idempotente: la primera
// asignación gana.
func (s *SQLiteStorage) MarkConsumed(ctx context.Context, recordID, gameID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO consumed_replays (record_id, game_id, consumed_at) VALUES (?, ?, ?)
		 ON CONFLICT(record_id) DO NOTHING`,
		recordID, gameID, at.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("storage.MarkConsumed: insert %s: %w", recordID, err)
	}
	s.mu.Lock()
	s.consumed[recordID] = true
	s.mu.Unlock()
	return nil
}

// SavePrediction guarda una sesión terminada.
func (s *SQLiteStorage) SavePrediction(ctx context.Context, p domain.PredictionSession) error {
	finished := p.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_history
			(game_id, prediction_id, title, status, outcome, reason, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GameID, p.ID, p.Title, string(p.Status), string(p.Outcome), p.Reason,
		formatTime(p.CreatedAt), finished.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("storage.SavePrediction: insert %s: %w", p.GameID, err)
	}
	return nil
}

// RecentPredictions devuelve las últimas sesiones terminadas, la más reciente primero.
func (s *SQLiteStorage) RecentPredictions(ctx context.Context, limit int) ([]domain.PredictionSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, COALESCE(prediction_id, ''), COALESCE(title, ''), status,
		       COALESCE(outcome, ''), COALESCE(reason, ''), COALESCE(created_at, ''), finished_at
		FROM prediction_history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentPredictions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PredictionSession
	for rows.Next() {
		var p domain.PredictionSession
		var status, outcome, created, finished string
		if err := rows.Scan(&p.GameID, &p.ID, &p.Title, &status, &outcome, &p.Reason, &created, &finished); err != nil {
			return nil, fmt.Errorf("storage.RecentPredictions: scan row: %w", err)
		}
		p.Status = domain.PredictionStatus(status)
		p.Outcome = domain.Outcome(outcome)
		p.CreatedAt = parseTime(created)
		p.FinishedAt = parseTime(finished)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadCredential devuelve la credencial guardada para clientID si se derivó
// del mismo refresh token configurado.
func (s *SQLiteStorage) LoadCredential(ctx context.Context, clientID, seedRefreshToken string) (domain.Credential, bool, error) {
	var seed, expires string
	var cred domain.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT seed_hash, access_token, refresh_token, COALESCE(expires_at, '') FROM credentials WHERE client_id = ?`,
		clientID,
	).Scan(&seed, &cred.AccessToken, &cred.RefreshToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, false, nil
	}
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("storage.LoadCredential: %w", err)
	}
	if seed != hashSeed(seedRefreshToken) {
		return domain.Credential{}, false, nil
	}
	cred.ExpiresAt = parseTime(expires)
	return cred, true, nil
}

// SaveCredential reemplaza la credencial guardada para clientID.
func (s *SQLiteStorage) SaveCredential(ctx context.Context, clientID, seedRefreshToken string, cred domain.Credential) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (client_id, seed_hash, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			seed_hash     = excluded.seed_hash,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		clientID, hashSeed(seedRefreshToken), cred.AccessToken, cred.RefreshToken,
		formatTime(cred.ExpiresAt), time.Now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("storage.SaveCredential: upsert: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context, now time.Time) {
	cutoffReplays := now.UTC().Add(-retentionReplays).Format(timeLayout)
	cutoffHistory := now.UTC().Add(-retentionHistory).Format(timeLayout)
	s.db.ExecContext(ctx, `DELETE FROM consumed_replays WHERE consumed_at < ?`, cutoffReplays)
	s.db.ExecContext(ctx, `DELETE FROM prediction_history WHERE finished_at < ?`, cutoffHistory)
}

// warmCache precarga los replays consumidos desde la DB al arrancar.
func (s *SQLiteStorage) warmCache(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_id FROM consumed_replays`)
	if err != nil {
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			s.consumed[id] = true
		}
	}
}

func hashSeed(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
