package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/scenebot/config"
	"github.com/alejandrodnm/scenebot/internal/adapters/metrics"
	"github.com/alejandrodnm/scenebot/internal/adapters/obs"
	"github.com/alejandrodnm/scenebot/internal/adapters/overlay"
	"github.com/alejandrodnm/scenebot/internal/adapters/sc2client"
	"github.com/alejandrodnm/scenebot/internal/adapters/sc2replaystats"
	"github.com/alejandrodnm/scenebot/internal/adapters/storage"
	"github.com/alejandrodnm/scenebot/internal/adapters/twitch"
	"github.com/alejandrodnm/scenebot/internal/application/auth"
	"github.com/alejandrodnm/scenebot/internal/application/gamestate"
	"github.com/alejandrodnm/scenebot/internal/application/orchestrator"
	"github.com/alejandrodnm/scenebot/internal/application/prediction"
	"github.com/alejandrodnm/scenebot/internal/application/replay"
	"github.com/alejandrodnm/scenebot/internal/application/scene"
	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/alejandrodnm/scenebot/internal/ports"
)

// app agrupa los componentes construidos a partir de la config. Las
// integraciones deshabilitadas quedan a nil.
type app struct {
	store   *storage.SQLiteStorage
	prom    *metrics.Prometheus
	monitor *gamestate.Monitor
	orch    *orchestrator.Orchestrator
	scenes  *scene.Controller
	preds   *prediction.Manager
	server  *metrics.Server

	closeOnce sync.Once
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	var m ports.Metrics = ports.NopMetrics{}
	if cfg.Metrics.Enabled {
		a.prom = metrics.NewPrometheus()
		m = a.prom
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	game := sc2client.NewClient(cfg.GameClient.BaseURL, cfg.GameClientTimeout())
	deps := orchestrator.Deps{}

	if cfg.SceneSwitcher.Enabled {
		a.scenes = newSceneController(cfg, m)
		deps.Scenes = a.scenes
	}

	window, skew, pollInitial, pollMax, ceiling := cfg.CorrelationWindow()
	if cfg.SC2ReplayStats.Enabled {
		rs := sc2replaystats.NewClient(cfg.SC2ReplayStats.BaseURL, cfg.SC2ReplayStats.AuthKey, 0)
		deps.Results = replay.New(replay.Config{
			Window:      window,
			ClockSkew:   skew,
			PollInitial: pollInitial,
			PollMax:     pollMax,
			Ceiling:     ceiling,
		}, rs, store, m)
		deps.Overlay = overlay.NewFile(cfg.SC2ReplayStats.LastGameFile)
	} else {
		// Sin servicio de replays el resultado sale del propio cliente del juego.
		deps.Results = sc2client.NewLocalResults(game, 2*time.Second, time.Minute)
	}

	if cfg.Twitch.Enabled {
		preds, err := newPredictionManager(ctx, cfg, store, m)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.preds = preds
		deps.Predictions = preds
	}

	a.orch = orchestrator.New(deps)
	a.monitor = gamestate.New(gamestate.Config{
		Interval:         cfg.PollInterval(),
		Confirmations:    cfg.Poll.Confirmations,
		FailureThreshold: cfg.Poll.FailureThreshold,
	}, game, a.orch, m)

	if cfg.Metrics.Enabled {
		a.server = metrics.NewServer(cfg.Metrics.Addr, a.prom, a.status, a.healthy)
	}
	return a, nil
}

func newSceneController(cfg *config.Config, m ports.Metrics) *scene.Controller {
	s := cfg.SceneSwitcher
	client := obs.NewClient(obs.Config{
		Host:     s.Host,
		Port:     s.Port,
		Password: s.Password,
	})
	initial, maxWait := cfg.ReconnectBackoff()
	return scene.New(scene.Config{
		Scenes: scene.Scenes{
			InGame:    s.InGameScene,
			Replay:    s.ReplayScene,
			OutOfGame: s.OutOfGameScene,
			Loading:   s.LoadingScene,
		},
		ReconnectInitial: initial,
		ReconnectMax:     maxWait,
	}, client, m)
}

func newTwitch(cfg *config.Config, store ports.CredentialStore, m ports.Metrics) (*twitch.Client, *auth.Refresher) {
	t := cfg.Twitch
	client := twitch.NewClient(twitch.Config{
		ClientID:     t.ClientID,
		ClientSecret: t.ClientSecret,
		Broadcaster:  t.Broadcaster,
		HelixBase:    t.HelixBase,
		TokenURL:     t.TokenURL,
	})
	refresher := auth.New(auth.Config{ClientID: t.ClientID},
		domain.Credential{AccessToken: t.AuthToken, RefreshToken: t.RefreshToken},
		client, store, m)
	return client, refresher
}

func newPredictionManager(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, m ports.Metrics) (*prediction.Manager, error) {
	client, refresher := newTwitch(cfg, store, m)
	if err := refresher.Restore(ctx); err != nil {
		slog.Warn("could not restore persisted credential, using configured tokens", "err", err)
	}

	t := cfg.Twitch
	pc := prediction.DefaultConfig()
	pc.Title = t.PredictionTitle
	pc.WinOption = t.WinOption
	pc.LossOption = t.LossOption
	pc.WindowSeconds = t.PredictionWindowSeconds
	pc.ResultTimeout = cfg.ResultTimeout()
	pc.LockOnGameEnd = t.LockOnGameEnd
	pc.ResolveAttempts = t.ResolveAttempts
	return prediction.New(pc, client, refresher, store, m), nil
}

// runners devuelve los loops a lanzar en el errgroup.
func (a *app) runners() []func(context.Context) error {
	rs := []func(context.Context) error{a.monitor.Run, a.orch.Run}
	if a.scenes != nil {
		rs = append(rs, a.scenes.Run)
	}
	if a.preds != nil {
		rs = append(rs, a.preds.Run)
	}
	if a.server != nil {
		rs = append(rs, a.server.Run)
	}
	return rs
}

func (a *app) healthy() bool {
	return !a.monitor.Status().Degraded
}

// status arma el documento de /status.
func (a *app) status(ctx context.Context) any {
	doc := map[string]any{
		"monitor": a.monitor.Status(),
		"game_id": a.orch.GameID(),
	}
	if r := a.orch.LastResult(); r != nil {
		doc["last_result"] = map[string]any{
			"outcome":   r.Outcome,
			"record_id": r.SourceRecordID,
			"ended_at":  r.MatchTimestamp,
		}
	}
	if a.scenes != nil {
		doc["scene"] = a.scenes.Status()
	}
	if a.preds != nil {
		doc["prediction"] = sessionDoc(a.preds.Status())
		if hist, err := a.store.RecentPredictions(ctx, 5); err == nil {
			recent := make([]map[string]any, 0, len(hist))
			for _, p := range hist {
				recent = append(recent, sessionDoc(p))
			}
			doc["recent_predictions"] = recent
		}
	}
	return doc
}

func sessionDoc(p domain.PredictionSession) map[string]any {
	return map[string]any{
		"game_id":       p.GameID,
		"prediction_id": p.ID,
		"status":        p.Status,
		"outcome":       p.Outcome,
		"reason":        p.Reason,
	}
}

// Close libera el storage. Idempotente.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.store != nil {
			a.store.Close()
		}
	})
}

func obsAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.SceneSwitcher.Host, strconv.Itoa(cfg.SceneSwitcher.Port))
}
