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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesEnvValue(t *testing.T) {
	t.Setenv("REDMESH_TEST_HOST", "turtle-42")
	assert.Equal(t, "turtle-42", SubstituteEnvVars("${REDMESH_TEST_HOST}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "fallback", SubstituteEnvVars("${REDMESH_UNSET_VAR:fallback}"))
}

func TestSubstituteEnvVarsNoDefaultAndUnsetYieldsEmpty(t *testing.T) {
	assert.Equal(t, "", SubstituteEnvVars("${REDMESH_UNSET_VAR}"))
}

func TestSubstituteEnvVarsLeavesPlainTextAlone(t *testing.T) {
	assert.Equal(t, "udp://0.0.0.0:9999", SubstituteEnvVars("udp://0.0.0.0:9999"))
}

func TestSubstituteEnvVarsInConfigWalksNestedFields(t *testing.T) {
	t.Setenv("REDMESH_TEST_ADDR", "10.0.0.5:9999")

	cfg := &Config{
		Node:      NodeConfig{ID: "${REDMESH_UNSET_VAR:node-1}"},
		Transport: TransportConfig{ListenAddr: "${REDMESH_TEST_ADDR}"},
		Logging:   &LoggingConfig{Level: "${REDMESH_UNSET_VAR:info}"},
	}
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "node-1", cfg.Node.ID)
	assert.Equal(t, "10.0.0.5:9999", cfg.Transport.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSubstituteEnvVarsInConfigNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { SubstituteEnvVarsInConfig(nil) })
}

func TestGetEnvironmentPrefersRedmeshEnv(t *testing.T) {
	t.Setenv("REDMESH_ENV", "staging")
	t.Setenv("ENVIRONMENT", "production")
	assert.Equal(t, "staging", GetEnvironment())
}

func TestGetEnvironmentFallsBackToGenericEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())
}
