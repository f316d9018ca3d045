package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig envuelve cualquier error de validación.
var ErrInvalidConfig = errors.New("invalid config")

// Límites de la API de predicciones de Twitch.
const (
	MaxTitleLen     = 45
	MaxOutcomeLen   = 25
	MinWindowSecs   = 30
	MaxWindowSecs   = 1800
	defaultDBPath   = "scenebot.db"
	defaultOBSPort  = 4455
	defaultGameBase = "http://127.0.0.1:6119"

	defaultClockSkewSeconds = 60
)

// Config es la configuración completa del bot.
type Config struct {
	Poll           PollConfig           `yaml:"poll"`
	GameClient     GameClientConfig     `yaml:"game_client"`
	SceneSwitcher  SceneSwitcherConfig  `yaml:"scene_switcher"`
	Twitch         TwitchConfig         `yaml:"twitch"`
	SC2ReplayStats SC2ReplayStatsConfig `yaml:"sc2replaystats"`
	Correlation    CorrelationConfig    `yaml:"correlation"`
	Storage        StorageConfig        `yaml:"storage"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Log            LogConfig            `yaml:"log"`
}

// PollConfig controla el muestreo del cliente del juego.
type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	Confirmations    int `yaml:"confirmations"`     // lecturas iguales para confirmar un estado
	FailureThreshold int `yaml:"failure_threshold"` // fallos seguidos hasta modo degradado
}

// GameClientConfig es la API HTTP local del juego.
type GameClientConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// SceneSwitcherConfig es la conexión a OBS y los nombres de escena.
type SceneSwitcherConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	Password                string `yaml:"password"`
	InGameScene             string `yaml:"in_game_scene"`
	ReplayScene             string `yaml:"replay_scene"` // vacío = in_game_scene
	OutOfGameScene          string `yaml:"out_of_game_scene"`
	LoadingScene            string `yaml:"loading_scene"` // vacío = sin escena de carga
	ReconnectInitialSeconds int    `yaml:"reconnect_initial_seconds"`
	ReconnectMaxSeconds     int    `yaml:"reconnect_max_seconds"`
}

// TwitchConfig son las credenciales y la forma de la predicción.
type TwitchConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	ClientID                string `yaml:"client_id"`
	ClientSecret            string `yaml:"client_secret"`
	Broadcaster             string `yaml:"broadcaster"`
	AuthToken               string `yaml:"auth_token"`
	RefreshToken            string `yaml:"refresh_token"`
	PredictionTitle         string `yaml:"prediction_title"`
	WinOption               string `yaml:"win_option"`
	LossOption              string `yaml:"loss_option"`
	PredictionWindowSeconds int    `yaml:"prediction_window_seconds"`
	LockOnGameEnd           bool   `yaml:"lock_on_game_end"`
	ResultTimeoutSeconds    int    `yaml:"result_timeout_seconds"`
	ResolveAttempts         int    `yaml:"resolve_attempts"`
	HelixBase               string `yaml:"helix_base"`
	TokenURL                string `yaml:"token_url"`
}

// SC2ReplayStatsConfig es la cuenta del servicio de replays y el overlay.
type SC2ReplayStatsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AuthKey      string `yaml:"auth_key"`
	BaseURL      string `yaml:"base_url"`
	LastGameFile string `yaml:"last_game_file"`
}

// CorrelationConfig controla la búsqueda del resultado tras una partida.
type CorrelationConfig struct {
	WindowSeconds      int `yaml:"window_seconds"`
	ClockSkewSeconds   *int `yaml:"clock_skew_seconds"` // nil = 60; 0 es válido
	PollInitialSeconds int `yaml:"poll_initial_seconds"`
	PollMaxSeconds     int `yaml:"poll_max_seconds"`
	CeilingSeconds     int `yaml:"ceiling_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig es el servidor de /metrics y /status.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`   // opcional: copia del log en fichero
}

// envOverrides son los secretos que pueden venir de .env o del entorno.
type envOverrides struct {
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchAuthToken    string `env:"TWITCH_AUTH_TOKEN"`
	TwitchRefreshToken string `env:"TWITCH_REFRESH_TOKEN"`
	OBSPassword        string `env:"OBS_PASSWORD"`
	SC2RSAuthKey       string `env:"SC2RS_AUTH_KEY"`
	LogLevel           string `env:"LOG_LEVEL"`
	LogFormat          string `env:"LOG_FORMAT"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w: %v", ErrInvalidConfig, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba solo las integraciones habilitadas.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Poll.Confirmations < 2 {
		add("poll.confirmations must be >= 2, got %d", c.Poll.Confirmations)
	}
	if c.Poll.FailureThreshold < 1 {
		add("poll.failure_threshold must be >= 1, got %d", c.Poll.FailureThreshold)
	}

	if s := c.SceneSwitcher; s.Enabled {
		if blank(s.Host) {
			add("scene_switcher.host is required")
		}
		if s.Port <= 0 || s.Port > 65535 {
			add("scene_switcher.port %d out of range", s.Port)
		}
		if blank(s.InGameScene) {
			add("scene_switcher.in_game_scene is required")
		}
		if blank(s.OutOfGameScene) {
			add("scene_switcher.out_of_game_scene is required")
		}
	}

	if t := c.Twitch; t.Enabled {
		for name, v := range map[string]string{
			"client_id":     t.ClientID,
			"client_secret": t.ClientSecret,
			"refresh_token": t.RefreshToken,
		} {
			if blank(v) {
				add("twitch.%s is required", name)
			}
		}
		if blank(t.PredictionTitle) || utf8.RuneCountInString(t.PredictionTitle) > MaxTitleLen {
			add("twitch.prediction_title must be 1-%d characters", MaxTitleLen)
		}
		for name, v := range map[string]string{"win_option": t.WinOption, "loss_option": t.LossOption} {
			if blank(v) || utf8.RuneCountInString(v) > MaxOutcomeLen {
				add("twitch.%s must be 1-%d characters", name, MaxOutcomeLen)
			}
		}
		if t.WinOption == t.LossOption {
			add("twitch.win_option and twitch.loss_option must differ")
		}
		if t.PredictionWindowSeconds < MinWindowSecs || t.PredictionWindowSeconds > MaxWindowSecs {
			add("twitch.prediction_window_seconds must be %d-%d, got %d", MinWindowSecs, MaxWindowSecs, t.PredictionWindowSeconds)
		}
	}

	if r := c.SC2ReplayStats; r.Enabled {
		if blank(r.AuthKey) {
			add("sc2replaystats.auth_key is required")
		}
		if blank(r.LastGameFile) {
			add("sc2replaystats.last_game_file is required")
		}
	}

	if sk := c.Correlation.ClockSkewSeconds; sk != nil && *sk < 0 {
		add("correlation.clock_skew_seconds must be >= 0, got %d", *sk)
	}
	if c.Correlation.CeilingSeconds < c.Correlation.PollInitialSeconds {
		add("correlation.ceiling_seconds must be >= poll_initial_seconds")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// GameClientTimeout es el timeout de cada request al cliente del juego.
func (c *Config) GameClientTimeout() time.Duration {
	return time.Duration(c.GameClient.TimeoutMs) * time.Millisecond
}

// ReconnectBackoff devuelve el backoff inicial y máximo de reconexión a OBS.
func (c *Config) ReconnectBackoff() (initial, maxWait time.Duration) {
	return time.Duration(c.SceneSwitcher.ReconnectInitialSeconds) * time.Second,
		time.Duration(c.SceneSwitcher.ReconnectMaxSeconds) * time.Second
}

// ResultTimeout es cuánto espera una predicción su resultado antes de reembolsar.
func (c *Config) ResultTimeout() time.Duration {
	return time.Duration(c.Twitch.ResultTimeoutSeconds) * time.Second
}

// CorrelationWindow devuelve ventana, tolerancia de reloj, polling y techo.
func (c *Config) CorrelationWindow() (window, skew, pollInitial, pollMax, ceiling time.Duration) {
	s := func(n int) time.Duration { return time.Duration(n) * time.Second }
	cc := c.Correlation
	var skewSeconds int
	if cc.ClockSkewSeconds != nil {
		skewSeconds = *cc.ClockSkewSeconds
	}
	return s(cc.WindowSeconds), s(skewSeconds), s(cc.PollInitialSeconds), s(cc.PollMaxSeconds), s(cc.CeilingSeconds)
}

// Redacted devuelve una copia con los secretos enmascarados, apta para logs.
func (c *Config) Redacted() Config {
	out := *c
	out.SceneSwitcher.Password = mask(out.SceneSwitcher.Password)
	out.Twitch.ClientSecret = mask(out.Twitch.ClientSecret)
	out.Twitch.AuthToken = mask(out.Twitch.AuthToken)
	out.Twitch.RefreshToken = mask(out.Twitch.RefreshToken)
	out.SC2ReplayStats.AuthKey = mask(out.SC2ReplayStats.AuthKey)
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Twitch.ClientID, e.TwitchClientID)
	set(&cfg.Twitch.ClientSecret, e.TwitchClientSecret)
	set(&cfg.Twitch.AuthToken, e.TwitchAuthToken)
	set(&cfg.Twitch.RefreshToken, e.TwitchRefreshToken)
	set(&cfg.SceneSwitcher.Password, e.OBSPassword)
	set(&cfg.SC2ReplayStats.AuthKey, e.SC2RSAuthKey)
	set(&cfg.Log.Level, e.LogLevel)
	set(&cfg.Log.Format, e.LogFormat)
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Poll.IntervalMs <= 0 {
		cfg.Poll.IntervalMs = 1000
	}
	if cfg.Poll.Confirmations == 0 {
		cfg.Poll.Confirmations = 2
	}
	if cfg.Poll.FailureThreshold == 0 {
		cfg.Poll.FailureThreshold = 10
	}
	if cfg.GameClient.BaseURL == "" {
		cfg.GameClient.BaseURL = defaultGameBase
	}
	if cfg.GameClient.TimeoutMs <= 0 {
		cfg.GameClient.TimeoutMs = 2000
	}

	s := &cfg.SceneSwitcher
	if s.Host == "" {
		s.Host = "localhost"
	}
	if s.Port == 0 {
		s.Port = defaultOBSPort
	}
	if s.ReconnectInitialSeconds <= 0 {
		s.ReconnectInitialSeconds = 1
	}
	if s.ReconnectMaxSeconds <= 0 {
		s.ReconnectMaxSeconds = 30
	}

	t := &cfg.Twitch
	if t.PredictionTitle == "" {
		t.PredictionTitle = "Will I win this game?"
	}
	if t.WinOption == "" {
		t.WinOption = "Yes"
	}
	if t.LossOption == "" {
		t.LossOption = "No"
	}
	if t.PredictionWindowSeconds == 0 {
		t.PredictionWindowSeconds = 120
	}
	if t.ResultTimeoutSeconds <= 0 {
		t.ResultTimeoutSeconds = 600
	}
	if t.ResolveAttempts <= 0 {
		t.ResolveAttempts = 4
	}

	if cfg.SC2ReplayStats.LastGameFile == "" {
		cfg.SC2ReplayStats.LastGameFile = "last_game.txt"
	}

	cc := &cfg.Correlation
	if cc.WindowSeconds <= 0 {
		cc.WindowSeconds = 600
	}
	if cc.ClockSkewSeconds == nil {
		skew := defaultClockSkewSeconds
		cc.ClockSkewSeconds = &skew
	}
	if cc.PollInitialSeconds <= 0 {
		cc.PollInitialSeconds = 5
	}
	if cc.PollMaxSeconds <= 0 {
		cc.PollMaxSeconds = 30
	}
	if cc.CeilingSeconds <= 0 {
		cc.CeilingSeconds = 600
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = defaultDBPath
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
