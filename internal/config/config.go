// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig overrides or extends one catalog entry
type ModelConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name,omitempty"`
	Provider    string `yaml:"provider,omitempty"`
	Color       string `yaml:"color,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// ModeConfig overrides or extends one project mode
type ModeConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	Icon         string `yaml:"icon,omitempty"`
	Description  string `yaml:"description,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

type Config struct {
	Relay struct {
		URL       string `yaml:"url"`
		ChatPath  string `yaml:"chat_path"`
		BoostPath string `yaml:"boost_path"`
		APIKey    string `yaml:"api_key,omitempty"`
	} `yaml:"relay"`
	Transport struct {
		ConnectTimeout        int `yaml:"connect_timeout"`         // seconds
		TLSHandshakeTimeout   int `yaml:"tls_handshake_timeout"`   // seconds
		ResponseHeaderTimeout int `yaml:"response_header_timeout"` // seconds
		MaxPendingBytes       int `yaml:"max_pending_bytes"`       // 0 keeps the decoder default
	} `yaml:"transport"`
	Defaults struct {
		Models    []string `yaml:"models"`
		Mode      string   `yaml:"mode"`
		MaxModels int      `yaml:"max_models"`
		StaggerMs int      `yaml:"stagger_ms"`
	} `yaml:"defaults"`
	Models []ModelConfig `yaml:"models,omitempty"`
	Modes  []ModeConfig  `yaml:"modes,omitempty"`
	Log    struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Notify struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint,omitempty"`
	} `yaml:"notify"`
}

// Load reads the config from the standard location
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path, falling back to defaults when the
// file does not exist
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Relay.ChatPath == "" {
		cfg.Relay.ChatPath = "/functions/v1/chat"
	}
	if cfg.Relay.BoostPath == "" {
		cfg.Relay.BoostPath = "/functions/v1/boost-prompt"
	}
	if cfg.Transport.ConnectTimeout == 0 {
		cfg.Transport.ConnectTimeout = 10
	}
	if cfg.Transport.TLSHandshakeTimeout == 0 {
		cfg.Transport.TLSHandshakeTimeout = 10
	}
	if cfg.Transport.ResponseHeaderTimeout == 0 {
		cfg.Transport.ResponseHeaderTimeout = 60
	}
	if len(cfg.Defaults.Models) == 0 {
		cfg.Defaults.Models = []string{"gpt-4o", "claude-sonnet"}
	}
	if cfg.Defaults.Mode == "" {
		cfg.Defaults.Mode = "general"
	}
	if cfg.Defaults.MaxModels == 0 {
		cfg.Defaults.MaxModels = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile()
	}
}

// applyEnv lets the environment fill in what the file left empty
func applyEnv(cfg *Config) {
	if cfg.Relay.URL == "" {
		cfg.Relay.URL = os.Getenv("CHORUS_RELAY_URL")
	}
	if cfg.Relay.APIKey == "" {
		cfg.Relay.APIKey = os.Getenv("CHORUS_API_KEY")
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Defaults.MaxModels < 1 {
		return fmt.Errorf("defaults.max_models must be at least 1, got %d", c.Defaults.MaxModels)
	}
	if len(c.Defaults.Models) > c.Defaults.MaxModels {
		return fmt.Errorf("defaults.models lists %d models, max_models is %d", len(c.Defaults.Models), c.Defaults.MaxModels)
	}
	if c.Transport.MaxPendingBytes < 0 {
		return fmt.Errorf("transport.max_pending_bytes must not be negative")
	}
	if c.Defaults.StaggerMs < 0 {
		return fmt.Errorf("defaults.stagger_ms must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// ChatURL is the relay endpoint for streaming chat requests
func (c *Config) ChatURL() string {
	return c.Relay.URL + c.Relay.ChatPath
}

// BoostURL is the relay endpoint for prompt boosting
func (c *Config) BoostURL() string {
	return c.Relay.URL + c.Relay.BoostPath
}

// Stagger is the delay between consecutive stream launches
func (c *Config) Stagger() time.Duration {
	return time.Duration(c.Defaults.StaggerMs) * time.Millisecond
}

func ConfigPath() string {
	configDir, _ := os.UserConfigDir()
	if configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "chorus", "config.yaml")
}

func defaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "chorus.log")
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "chorus", "chorus.log")
}
