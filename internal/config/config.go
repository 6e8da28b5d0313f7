package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"settlers/internal/engine"
)

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Game    GameConfig    `yaml:"game"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	StaticDir       string `yaml:"static_dir"` // optional UI served at /
	PublicURL       string `yaml:"public_url"` // base for QR join links; defaults to the request host
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	GameTTL         string `yaml:"game_ttl"` // idle games older than this are dropped; "0" keeps them
}

// GameConfig holds defaults for new games.
type GameConfig struct {
	Players       []string `yaml:"players"`
	VictoryPoints int      `yaml:"victory_points"`
	TradeRatio    int      `yaml:"trade_ratio"`
	Seed          uint64   `yaml:"seed"` // 0 rolls random dice
}

// StoreConfig configures persistence. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
			GameTTL:         "24h",
		},
		Game: GameConfig{
			Players:       []string{"Player 1", "Player 2"},
			VictoryPoints: 10,
			TradeRatio:    4,
		},
		Store: StoreConfig{
			Path: "settlers.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path or a missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks ranges and durations.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if _, err := parseDuration(c.Server.GameTTL); err != nil {
		return fmt.Errorf("server.game_ttl: %w", err)
	}
	if n := len(c.Game.Players); n != 0 && (n < 2 || n > 4) {
		return fmt.Errorf("game.players: need 2 to 4 names, got %d", n)
	}
	if c.Game.VictoryPoints < 3 {
		return fmt.Errorf("game.victory_points must be at least 3, got %d", c.Game.VictoryPoints)
	}
	if c.Game.TradeRatio < 1 {
		return fmt.Errorf("game.trade_ratio must be positive, got %d", c.Game.TradeRatio)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// ShutdownTimeoutDuration returns the parsed shutdown grace period.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := parseDuration(s.ShutdownTimeout)
	return d
}

// GameTTLDuration returns the parsed idle-game lifetime; 0 disables expiry.
func (s ServerConfig) GameTTLDuration() time.Duration {
	d, _ := parseDuration(s.GameTTL)
	return d
}

// EngineConfig converts the game section into engine settings.
func (g GameConfig) EngineConfig() engine.GameConfig {
	ec := engine.DefaultConfig()
	if g.VictoryPoints > 0 {
		ec.VictoryPoints = g.VictoryPoints
	}
	if g.TradeRatio > 0 {
		ec.TradeRatio = g.TradeRatio
	}
	return ec
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
