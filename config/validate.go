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

import "fmt"

// ValidationIssue is one finding from ValidateConfiguration. Level is
// either "error" (Load fails) or "warning" (Load proceeds, the caller
// may choose to log it).
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ValidateConfiguration checks cfg against the invariants spec §4.1 and
// §6 require: a usable signing secret, a non-empty node identity, and
// internally consistent tunables.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Node.ID == "" {
		issues = append(issues, ValidationIssue{
			Field: "node.id", Message: "node id must not be empty", Level: "error",
		})
	}

	secret := cfg.Secret.Resolve()
	if len(secret) < 16 {
		issues = append(issues, ValidationIssue{
			Field:   "secret",
			Message: "shared secret must be at least 16 characters",
			Level:   "error",
		})
	}

	t := cfg.Tunables
	if t.MaxChunkLimit < t.DefaultChunkLimit {
		issues = append(issues, ValidationIssue{
			Field:   "tunables.max_chunk_limit",
			Message: fmt.Sprintf("max_chunk_limit (%d) must be >= default_chunk_limit (%d)", t.MaxChunkLimit, t.DefaultChunkLimit),
			Level:   "error",
		})
	}
	if t.FutureSkew >= t.MaxMessageAge {
		issues = append(issues, ValidationIssue{
			Field:   "tunables.future_skew",
			Message: "future_skew should be smaller than max_message_age",
			Level:   "warning",
		})
	}
	if t.CacheTTL >= t.CacheExpire {
		issues = append(issues, ValidationIssue{
			Field:   "tunables.cache_ttl",
			Message: "cache_ttl should be smaller than cache_expire",
			Level:   "warning",
		})
	}
	if t.MaxConsecutiveFailures <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "tunables.max_consecutive_failures",
			Message: "max_consecutive_failures must be positive",
			Level:   "error",
		})
	}

	switch cfg.Node.Role {
	case "host", "client", "both", "":
	default:
		issues = append(issues, ValidationIssue{
			Field:   "node.role",
			Message: fmt.Sprintf("unrecognized role %q, expected host, client, or both", cfg.Node.Role),
			Level:   "warning",
		})
	}

	return issues
}
