// redmesh - peripheral-proxy fabric
// Copyright (C) 2025 redmesh-project
//
// This file is part of redmesh.
//
// redmesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// redmesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with redmesh. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// SkipEnvSubstitution disables environment variable substitution.
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation.
	SkipValidation bool
	// DotEnvPath is a .env file loaded into the process environment
	// before substitution/overrides are read, letting REDMESH_SECRET
	// and friends come from a local file in development. Empty means
	// ".env"; "-" skips .env loading entirely. Variables already set
	// in the real environment are never overwritten.
	DotEnvPath string
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:           "config",
		Environment:         "",
		SkipEnvSubstitution: false,
		SkipValidation:      false,
		DotEnvPath:          ".env",
	}
}

// loadDotEnv best-effort loads path into the process environment. A
// missing file is not an error; this is meant for local/dev use only.
func loadDotEnv(path string) {
	if path == "-" {
		return
	}
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// Load loads configuration with automatic environment detection, trying
// <env>.yaml, then default.yaml, then config.yaml under ConfigDir before
// falling back to an empty, defaults-only Config.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	loadDotEnv(options.DotEnvPath)

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		issues := ValidateConfiguration(cfg)
		for _, e := range issues {
			if e.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", e.Field, e.Message)
			}
		}
	}

	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides cfg with REDMESH_* environment
// variables, the highest-priority source in the layering spec §6
// implies (file < substitution < explicit override).
func applyEnvironmentOverrides(cfg *Config) {
	if id := os.Getenv("REDMESH_NODE_ID"); id != "" {
		cfg.Node.ID = id
	}
	if name := os.Getenv("REDMESH_HOST_NAME"); name != "" {
		cfg.Node.HostName = name
	}
	if role := os.Getenv("REDMESH_ROLE"); role != "" {
		cfg.Node.Role = role
	}

	if secret := os.Getenv("REDMESH_SECRET"); secret != "" {
		cfg.Secret.Value = secret
	}

	if addr := os.Getenv("REDMESH_LISTEN_ADDR"); addr != "" {
		cfg.Transport.ListenAddr = addr
	}

	if logLevel := os.Getenv("REDMESH_LOG_LEVEL"); logLevel != "" && cfg.Logging != nil {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("REDMESH_LOG_FORMAT"); logFormat != "" && cfg.Logging != nil {
		cfg.Logging.Format = logFormat
	}

	if cfg.Metrics != nil {
		if os.Getenv("REDMESH_METRICS_ENABLED") == "true" {
			cfg.Metrics.Enabled = true
		}
		if os.Getenv("REDMESH_METRICS_ENABLED") == "false" {
			cfg.Metrics.Enabled = false
		}
		if addr := os.Getenv("REDMESH_METRICS_ADDR"); addr != "" {
			cfg.Metrics.Addr = addr
		}
	}

	if cfg.Health != nil {
		if os.Getenv("REDMESH_HEALTH_ENABLED") == "true" {
			cfg.Health.Enabled = true
		}
		if os.Getenv("REDMESH_HEALTH_ENABLED") == "false" {
			cfg.Health.Enabled = false
		}
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
	})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
