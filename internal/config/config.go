// ABOUTME: Configuration loading for the channel relay
// ABOUTME: TOML with ${VAR} environment expansion; missing credentials are fatal

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete relay configuration.
type Config struct {
	Matrix  MatrixConfig  `toml:"matrix"`
	Relay   RelayConfig   `toml:"relay"`
	Logging LoggingConfig `toml:"logging"`
}

// MatrixConfig holds the transport credentials and endpoint.
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver"`
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
}

// RelayConfig holds the relay topology and tunables. Operators and source
// channels are Matrix identifiers; empty sets degrade functionality (no
// admin surface, nothing to relay) but do not prevent startup.
type RelayConfig struct {
	SourceChannels []string `toml:"source_channels"`
	Operators      []string `toml:"operators"`
	PolicyPath     string   `toml:"policy_path"`
	DirectoryPath  string   `toml:"directory_path"`

	RecoveryDelay    time.Duration `toml:"-"`
	RecoveryDelayRaw string        `toml:"recovery_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding ${VAR} environment
// variables in the raw file before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Relay.RecoveryDelayRaw != "" {
		cfg.Relay.RecoveryDelay, err = time.ParseDuration(cfg.Relay.RecoveryDelayRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing recovery_delay %q: %w", cfg.Relay.RecoveryDelayRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks the required fields. An absent access token is fatal;
// empty operator or source-channel sets are allowed and only warned about
// at startup.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	return nil
}
