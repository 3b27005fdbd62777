package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitTiers overrides the middleware's requests-per-second tiers.
// A zero field leaves that tier at its built-in default.
type RateLimitTiers struct {
	GlobalRPS  int `yaml:"global_rps"`
	ClientRPS  int `yaml:"client_rps"`
	UnknownRPS int `yaml:"unknown_rps"`
}

// FileConfig holds optional static configuration loaded from .eventd.yaml.
// Every field is an override: a zero value (or omitted key) leaves the
// corresponding environment-variable-or-built-in default untouched, so an
// empty or missing file changes nothing.
type FileConfig struct {
	// TrustedSources is an optional allowlist of event sources. An empty
	// list disables the check: every source is accepted.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	TrustedSources []string `yaml:"trusted_sources"`

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	QueueCapacity int `yaml:"queue_capacity"`

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	MaxAgeDays int `yaml:"max_age_days"`

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	RateLimit RateLimitTiers `yaml:"rate_limit"`
}

const (
	// DefaultFileConfigPath is the default location for eventd's static config file.
	DefaultFileConfigPath = ".eventd.yaml"

	// FileConfigPathEnvVar is the environment variable for a custom config path.
	FileConfigPathEnvVar = "EVENTD_CONFIG_PATH"
)

// LoadFileConfig loads static configuration from a YAML file at path.
//
// A missing file or invalid YAML returns an empty config, not an error:
// static configuration is optional, and the service must be able to start
// without it.
func LoadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{TrustedSources: []string{}}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted deployment config
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read config file, continuing without it",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}

		return cfg
	}

	if len(data) == 0 {
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("failed to parse config file, continuing without it",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return &FileConfig{TrustedSources: []string{}}
	}

	if cfg.TrustedSources == nil {
		cfg.TrustedSources = []string{}
	}

	return cfg
}

// LoadFileConfigFromEnv loads static config from the path named by
// EVENTD_CONFIG_PATH, defaulting to ".eventd.yaml" in the working directory.
func LoadFileConfigFromEnv() *FileConfig {
	path := GetEnvStr(FileConfigPathEnvVar, DefaultFileConfigPath)

	return LoadFileConfig(path)
}
