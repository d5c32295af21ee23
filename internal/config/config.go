package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds daemon settings. Values come from the TOML file, then
// TGMUX_* environment variables override whatever the file set.
type Config struct {
	DataDir          string  `toml:"data_dir" envconfig:"DATA_DIR"`
	ListenAddr       string  `toml:"listen_addr" envconfig:"LISTEN_ADDR"`
	SendDelaySeconds float64 `toml:"send_delay_seconds" envconfig:"SEND_DELAY_SECONDS"`
	JoinDelaySeconds float64 `toml:"join_delay_seconds" envconfig:"JOIN_DELAY_SECONDS"`
	DialogLimit      int     `toml:"dialog_limit" envconfig:"DIALOG_LIMIT"`
	ErrorCap         int     `toml:"error_cap" envconfig:"ERROR_CAP"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:          filepath.Join(home, ".tgmux"),
		ListenAddr:       "127.0.0.1:8489",
		SendDelaySeconds: 1.0,
		JoinDelaySeconds: 2.0,
		DialogLimit:      200,
		ErrorCap:         10,
	}
}

// DefaultPath returns the conventional config file location inside the
// default data directory.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgmux", "config.toml")
}

// Load reads the TOML file at path (missing file is not an error) and then
// applies TGMUX_* environment overrides. Invalid values fail loudly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process("tgmux", cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// SendDelay returns the inter-send delay as a duration.
func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.SendDelaySeconds * float64(time.Second))
}

// JoinDelay returns the inter-join delay as a duration.
func (c *Config) JoinDelay() time.Duration {
	return time.Duration(c.JoinDelaySeconds * float64(time.Second))
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.SendDelaySeconds < 0 || c.JoinDelaySeconds < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.DialogLimit <= 0 {
		return fmt.Errorf("dialog_limit must be positive")
	}
	if c.ErrorCap <= 0 {
		return fmt.Errorf("error_cap must be positive")
	}
	return nil
}
