package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/scenebot/config"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	logFile := flag.String("log-file", "", "also append logs to this file (overrides config)")
	check := flag.Bool("check", false, "validate config and connectivity of enabled integrations, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		slog.Error("failed to open log file", "err", err, "path", cfg.Log.File)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *check {
		ok := runCheck(ctx, cfg, os.Stdout)
		closeLog()
		if !ok {
			os.Exit(1)
		}
		return
	}

	redacted := cfg.Redacted()
	slog.Info("scenebot starting",
		"config", *configPath,
		"poll_interval", cfg.PollInterval(),
		"scene_switcher", cfg.SceneSwitcher.Enabled,
		"twitch", cfg.Twitch.Enabled,
		"sc2replaystats", cfg.SC2ReplayStats.Enabled,
		"metrics", cfg.Metrics.Enabled,
		"obs_password", redacted.SceneSwitcher.Password,
	)

	app, err := build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range app.runners() {
		g.Go(func() error { return run(gctx) })
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("scenebot exited with error", "err", err)
		app.Close()
		os.Exit(1)
	}

	slog.Info("scenebot stopped cleanly")
}

// setupLogger configura el logger por defecto. Si hay fichero de log, la
// salida va a stdout y al fichero.
func setupLogger(cfg config.LogConfig) (func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", cfg.File, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}
