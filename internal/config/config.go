package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backend holds the hosted platform endpoints and the publishable API key.
type Backend struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Config represents the global ~/.skillswap/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session"`
	Backend        Backend `toml:"backend"`
}

// Load reads the config file and then applies environment overrides.
// A .env file in the working directory is honored if present, matching
// how the backend credentials are distributed for local development.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return &cfg, nil
}

// LoadOrDefault is Load but a missing file yields a zero config with
// environment overrides applied instead of an error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
		cfg.applyEnv()
	}
	return cfg
}

func (c *Config) applyEnv() {
	_ = godotenv.Load()
	if v := os.Getenv("SKILLSWAP_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("SKILLSWAP_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
}

// Validate checks that the backend connection parameters are present.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url not configured (config.toml or SKILLSWAP_BACKEND_URL)")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend api key not configured (config.toml or SKILLSWAP_API_KEY)")
	}
	return nil
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
