package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alejandrodnm/scenebot/config"
	"github.com/alejandrodnm/scenebot/internal/adapters/obs"
	"github.com/alejandrodnm/scenebot/internal/adapters/sc2client"
	"github.com/alejandrodnm/scenebot/internal/adapters/sc2replaystats"
	"github.com/alejandrodnm/scenebot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

const checkTimeout = 10 * time.Second

type checkResult struct {
	name   string
	ok     bool
	detail string
}

// runCheck prueba cada integración habilitada e imprime una tabla con el
// resultado. Devuelve false si alguna falló. El cliente del juego puede no
// estar abierto: su fallo se informa pero no cuenta.
func runCheck(ctx context.Context, cfg *config.Config, out io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var results []checkResult
	add := func(name string, err error, detail string, required bool) {
		r := checkResult{name: name, ok: err == nil, detail: detail}
		if err != nil {
			r.detail = err.Error()
			if !required {
				r.detail = "(optional) " + r.detail
			}
		}
		if !required {
			r.ok = true
		}
		results = append(results, r)
	}

	game := sc2client.NewClient(cfg.GameClient.BaseURL, cfg.GameClientTimeout())
	state, err := game.Poll(ctx)
	add("game client", err, fmt.Sprintf("state %s", state), false)

	if cfg.SceneSwitcher.Enabled {
		scenes, err := checkOBS(ctx, cfg)
		add("obs "+obsAddr(cfg), err, fmt.Sprintf("%d scenes", scenes), true)
	}

	if cfg.Twitch.Enabled {
		client, refresher := newTwitch(cfg, nil, ports.NopMetrics{})
		err := refresher.Do(ctx, func(ctx context.Context, token string) error {
			_, _, err := client.LatestPrediction(ctx, token)
			return err
		})
		add("twitch", err, "token valid, channel resolved", true)
	}

	if cfg.SC2ReplayStats.Enabled {
		rs := sc2replaystats.NewClient(cfg.SC2ReplayStats.BaseURL, cfg.SC2ReplayStats.AuthKey, 0)
		ids, err := rs.PlayerIDs(ctx)
		add("sc2replaystats", err, fmt.Sprintf("%d account players", len(ids)), true)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Integration", "OK", "Detail")
	allOK := true
	for _, r := range results {
		mark := "yes"
		if !r.ok {
			mark = "NO"
			allOK = false
		}
		table.Append(r.name, mark, r.detail)
	}
	table.Render()
	return allOK
}

func checkOBS(ctx context.Context, cfg *config.Config) (int, error) {
	s := cfg.SceneSwitcher
	client := obs.NewClient(obs.Config{Host: s.Host, Port: s.Port, Password: s.Password})
	if err := client.Connect(ctx); err != nil {
		return 0, err
	}
	defer client.Close()

	scenes, err := client.ListScenes(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(scenes))
	for _, name := range scenes {
		have[name] = true
	}
	for _, want := range []string{s.InGameScene, s.ReplayScene, s.OutOfGameScene, s.LoadingScene} {
		if want != "" && !have[want] {
			return len(scenes), fmt.Errorf("scene %q not found in OBS", want)
		}
	}
	return len(scenes), nil
}
