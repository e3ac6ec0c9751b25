// Package config loads server configuration from a YAML file with
// environment variable overrides (SKYJO_ prefix, dots become
// underscores). A missing file is not an error; defaults apply.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Presence PresenceConfig `mapstructure:"presence"`
	Invite   InviteConfig   `mapstructure:"invite"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	WebSocket   WebSocketConfig `mapstructure:"websocket"`
	MaxSessions int             `mapstructure:"max_sessions"`
	LeasePeriod time.Duration   `mapstructure:"lease_period"`
}

type WebSocketConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

type PresenceConfig struct {
	// GracePeriod is how long an identity stays online after its last
	// connection drops.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type InviteConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	DelayStep    time.Duration `mapstructure:"delay_step"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

type GameConfig struct {
	ScoreLimit  int    `mapstructure:"score_limit"`
	MinPlayers  int    `mapstructure:"min_players"`
	MaxPlayers  int    `mapstructure:"max_players"`
	DefaultMode string `mapstructure:"default_mode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.max_sessions", 1000)
	v.SetDefault("server.lease_period", 5*time.Minute)

	v.SetDefault("presence.grace_period", 10*time.Second)

	v.SetDefault("invite.max_attempts", 3)
	v.SetDefault("invite.base_delay", 2*time.Second)
	v.SetDefault("invite.delay_step", 2*time.Second)
	v.SetDefault("invite.dedupe_window", 5*time.Second)

	v.SetDefault("game.score_limit", 100)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.default_mode", "STANDARD")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the configuration file at path, applying defaults and
// SKYJO_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SKYJO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			// SetConfigFile bypasses the search path, so a plain missing
			// file surfaces as a path error; tolerate that too.
			if !strings.Contains(err.Error(), "no such file") {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Game.MinPlayers < 2 {
		return fmt.Errorf("game.min_players must be at least 2, got %d", c.Game.MinPlayers)
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("game.max_players (%d) below game.min_players (%d)", c.Game.MaxPlayers, c.Game.MinPlayers)
	}
	if c.Invite.MaxAttempts < 0 {
		return fmt.Errorf("invite.max_attempts must not be negative, got %d", c.Invite.MaxAttempts)
	}
	return nil
}
