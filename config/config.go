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

// Package config is the fabric's single configuration surface: one
// YAML document, with ${VAR}/${VAR:default} environment substitution,
// carrying node identity, the shared secret source, transport
// settings, every spec §6 tunable default, and metrics/health server
// ports.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Node        NodeConfig      `yaml:"node" json:"node"`
	Secret      SecretConfig    `yaml:"secret" json:"secret"`
	Transport   TransportConfig `yaml:"transport" json:"transport"`
	Tunables    TunablesConfig  `yaml:"tunables" json:"tunables"`
	Exclusions  ExclusionConfig `yaml:"exclusions" json:"exclusions"`
	Methods     MethodPolicy    `yaml:"methods" json:"methods"`
	Logging     *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig   `yaml:"health" json:"health"`
}

// NodeConfig identifies this node on the mesh.
type NodeConfig struct {
	ID       string `yaml:"id" json:"id"`
	HostName string `yaml:"host_name" json:"host_name"`
	Role     string `yaml:"role" json:"role"` // host, client, or both
}

// SecretConfig names where the envelope-signing shared secret comes
// from. Exactly one of Value or ValueEnv should be set; ValueEnv takes
// priority when both are (spec §4.1 "signing requires a pre-installed
// shared secret of ≥16 characters").
type SecretConfig struct {
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
	ValueEnv string `yaml:"value_env,omitempty" json:"value_env,omitempty"`
}

// Resolve returns the configured secret, preferring the environment
// variable named by ValueEnv when set.
func (s SecretConfig) Resolve() string {
	if s.ValueEnv != "" {
		if v := os.Getenv(s.ValueEnv); v != "" {
			return v
		}
	}
	return s.Value
}

// TransportConfig configures the concrete transport.Channel this node
// uses to stand in for the mod's broadcast radio (spec §2 C2).
type TransportConfig struct {
	ListenAddr string   `yaml:"listen_addr" json:"listen_addr"`
	Peers      []string `yaml:"peers" json:"peers"`
}

// TunablesConfig carries every default spec §6 names, in their native
// time.Duration/int form. In YAML a duration is a Go duration string
// ("5s", "1500ms"); in JSON it is an integer count of nanoseconds.
// Counts are plain integers in both.
type TunablesConfig struct {
	MaxMessageAge          time.Duration `yaml:"max_message_age" json:"max_message_age"`
	FutureSkew             time.Duration `yaml:"future_skew" json:"future_skew"`
	NonceExpiry            time.Duration `yaml:"nonce_expiry" json:"nonce_expiry"`
	AnnounceInterval       time.Duration `yaml:"announce_interval" json:"announce_interval"`
	DefaultChunkLimit      int           `yaml:"default_chunk_limit" json:"default_chunk_limit"`
	MaxChunkLimit          int           `yaml:"max_chunk_limit" json:"max_chunk_limit"`
	SnapshotTTL            time.Duration `yaml:"snapshot_ttl" json:"snapshot_ttl"`
	ActivityPollInterval   time.Duration `yaml:"activity_poll_interval" json:"activity_poll_interval"`
	CacheTTL               time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	CacheStale             time.Duration `yaml:"cache_stale" json:"cache_stale"`
	CacheExpire            time.Duration `yaml:"cache_expire" json:"cache_expire"`
	AsyncRetry             time.Duration `yaml:"async_retry" json:"async_retry"`
	DefaultRPCTimeout      time.Duration `yaml:"default_rpc_timeout" json:"default_rpc_timeout"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	ReconnectCooldown      time.Duration `yaml:"reconnect_cooldown" json:"reconnect_cooldown"`
	DiscoverTimeout        time.Duration `yaml:"discover_timeout" json:"discover_timeout"`
	SubscribeInterval      time.Duration `yaml:"subscribe_interval" json:"subscribe_interval"`
}

// ExclusionConfig is the host-side peripheral-type exclusion set
// (spec §4.8 "filters out an exclusion set").
type ExclusionConfig struct {
	Types []string `yaml:"types" json:"types"`
}

// MethodPolicy carries method classification overrides (spec §4.7's
// action-vs-read split), applied to every peripheral regardless of its
// type and layered on top of the fabric's built-in defaults rather than
// replacing them.
type MethodPolicy struct {
	ExtraActions []string `yaml:"extra_actions" json:"extra_actions"`
	ExtraHeavy   []string `yaml:"extra_heavy" json:"extra_heavy"`
}

// LoggingConfig configures internal/logger's process-wide Logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig configures a liveness/readiness endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile reads and parses cfg from path, trying YAML first and
// falling back to JSON, then applies defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: failed to parse file as YAML or JSON: %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile marshals cfg to path, choosing JSON for a ".json"
// extension and YAML otherwise.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if len(path) >= 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: failed to write file: %w", err)
	}
	return nil
}

// setDefaults fills every zero-valued tunable with the spec §6
// default, and every zero-valued ambient field with a sane default.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Node.Role == "" {
		cfg.Node.Role = "both"
	}

	t := &cfg.Tunables
	setDuration(&t.MaxMessageAge, 60*time.Second)
	setDuration(&t.FutureSkew, 5*time.Second)
	setDuration(&t.NonceExpiry, 120*time.Second)
	setDuration(&t.AnnounceInterval, 10*time.Second)
	if t.DefaultChunkLimit == 0 {
		t.DefaultChunkLimit = 200
	}
	if t.MaxChunkLimit == 0 {
		t.MaxChunkLimit = 1000
	}
	setDuration(&t.SnapshotTTL, 5*time.Second)
	setDuration(&t.ActivityPollInterval, 1500*time.Millisecond)
	setDuration(&t.CacheTTL, 2*time.Second)
	setDuration(&t.CacheStale, 5*time.Second)
	setDuration(&t.CacheExpire, 30*time.Second)
	setDuration(&t.AsyncRetry, 1*time.Second)
	setDuration(&t.DefaultRPCTimeout, 3*time.Second)
	if t.MaxConsecutiveFailures == 0 {
		t.MaxConsecutiveFailures = 3
	}
	setDuration(&t.ReconnectCooldown, 10*time.Second)
	setDuration(&t.DiscoverTimeout, 5*time.Second)
	setDuration(&t.SubscribeInterval, 1*time.Second)

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
	if cfg.Metrics != nil && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health != nil && cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}

func setDuration(field *time.Duration, def time.Duration) {
	if *field == 0 {
		*field = def
	}
}
