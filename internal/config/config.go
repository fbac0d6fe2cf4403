// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	User        UserConfig  `mapstructure:"user"`
	Feed        FeedConfig  `mapstructure:"feed"`
	News        NewsConfig  `mapstructure:"news"`
	Credentials Credentials `mapstructure:"-"` // Loaded separately
}

// UserConfig holds the local user identity and simulation baseline.
type UserConfig struct {
	ID           string  `mapstructure:"id"`
	Name         string  `mapstructure:"name"`
	InitialPrice float64 `mapstructure:"initial_price"`
}

// FeedConfig holds the remote snapshot feed configuration.
type FeedConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	MaxRetries    int    `mapstructure:"max_retries"`
	BaseDelayMs   int    `mapstructure:"base_delay_ms"`
	PingInterval  int    `mapstructure:"ping_interval_seconds"`
}

// NewsConfig holds AI news generation configuration.
type NewsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/habitstock"
	}
	return filepath.Join(home, ".config", "habitstock")
}

// DefaultDBPath returns the default sqlite database path.
func DefaultDBPath() string {
	return filepath.Join(DefaultConfigDir(), "habitstock.db")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadConfigFile(configDir, "credentials", &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// Missing files are fine; defaults and env cover them.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("HABITSTOCK_OPENAI_API_KEY"); key != "" {
		cfg.Credentials.OpenAI.APIKey = key
	}
	if id := os.Getenv("HABITSTOCK_USER_ID"); id != "" {
		cfg.User.ID = id
	}
	if url := os.Getenv("HABITSTOCK_FEED_URL"); url != "" {
		cfg.Feed.URL = url
		cfg.Feed.Enabled = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.User.ID == "" {
		cfg.User.ID = "local"
	}
	if cfg.User.InitialPrice == 0 {
		cfg.User.InitialPrice = 1000
	}
	if cfg.News.Model == "" {
		cfg.News.Model = "gpt-4o-mini"
	}
	if cfg.Feed.MaxRetries == 0 {
		cfg.Feed.MaxRetries = 5
	}
	if cfg.Feed.BaseDelayMs == 0 {
		cfg.Feed.BaseDelayMs = 1000
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.User.InitialPrice <= 0 {
		return fmt.Errorf("user.initial_price must be positive, got %v", c.User.InitialPrice)
	}
	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url is required when feed is enabled")
		}
		if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
			return fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL)
		}
	}
	return nil
}

// WriteDefault writes a commented default config.toml to configDir if none
// exists yet. Existing files are never overwritten.
func WriteDefault(configDir string) error {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0644)
}

const defaultConfigTemplate = `# habitstock configuration

[user]
id = "local"
name = ""
# Starting price for a brand-new stock history.
initial_price = 1000.0

[feed]
# Remote snapshot feed for friend price updates.
enabled = false
url = ""
max_retries = 5
base_delay_ms = 1000
ping_interval_seconds = 30

[news]
# AI-generated news for completed tasks. Requires an OpenAI API key in
# credentials.toml or HABITSTOCK_OPENAI_API_KEY.
enabled = true
model = "gpt-4o-mini"
`
