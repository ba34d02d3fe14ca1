// Package config loads the medisync client configuration from
// ~/.medisync/config.toml, with environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/BharathGovindula/medisync/internal/errors"
)

// Config represents the client configuration.
type Config struct {
	API  APIConfig  `toml:"api"`
	Sync SyncConfig `toml:"sync"`
}

// APIConfig holds remote API settings.
type APIConfig struct {
	// BaseURL of the medication API, e.g. https://meds.example.com.
	BaseURL string `toml:"base_url"`
	// Token is the opaque bearer credential. MEDISYNC_TOKEN overrides it.
	Token string `toml:"token"`
	// EventsURL is the websocket endpoint used as the connectivity
	// signal. Derived from BaseURL when empty.
	EventsURL string `toml:"events_url"`
}

// SyncConfig holds local queue and scheduling settings.
type SyncConfig struct {
	// DataDir holds the SQLite database. Defaults to the config dir.
	DataDir string `toml:"data_dir"`
	// RetryIntervalSeconds re-triggers drains while events remain
	// queued; 0 disables periodic retries.
	RetryIntervalSeconds int `toml:"retry_interval_seconds"`
	// ProbeRedialSeconds is the reconnect pause of the connectivity probe.
	ProbeRedialSeconds int `toml:"probe_redial_seconds"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			RetryIntervalSeconds: 60,
			ProbeRedialSeconds:   10,
		},
	}
}

// Dir returns the path to ~/.medisync, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".medisync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Read parses the config file at path (empty means the default
// location) without validation, for tooling that edits partial configs.
// A missing file yields the defaults.
func Read(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrConfig, "cannot read config", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "cannot parse config", err)
		}
	}
	return cfg, nil
}

// Load reads the config file at path (empty means the default location),
// applies defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MEDISYNC_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("MEDISYNC_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	cfg.applyDerived(path)
	if cfg.API.BaseURL == "" {
		return nil, errors.New(errors.ErrConfig, "api.base_url is required (set it in config.toml or MEDISYNC_BASE_URL)")
	}
	return cfg, nil
}

// Save writes the config to its default location.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.ErrConfig, "cannot encode config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrConfig, "cannot write config", err)
	}
	return nil
}

// applyDerived fills fields computable from the rest of the config.
func (c *Config) applyDerived(path string) {
	if c.Sync.DataDir == "" {
		c.Sync.DataDir = filepath.Dir(path)
	}
	if c.API.EventsURL == "" && c.API.BaseURL != "" {
		ws := c.API.BaseURL
		switch {
		case strings.HasPrefix(ws, "https://"):
			ws = "wss://" + strings.TrimPrefix(ws, "https://")
		case strings.HasPrefix(ws, "http://"):
			ws = "ws://" + strings.TrimPrefix(ws, "http://")
		}
		c.API.EventsURL = strings.TrimRight(ws, "/") + "/api/events"
	}
}
