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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToEmptyDefaultsWhenNoFileExists(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.NotZero(t, cfg.Tunables.CacheTTL)
}

func TestLoadPrefersEnvironmentSpecificFileOverDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("node:\n  id: default-node\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("node:\n  id: staging-node\n"), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "staging-node", cfg.Node.ID)
}

func TestLoadAppliesEnvironmentOverridesLast(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("node:\n  id: file-node\n"), 0644))
	t.Setenv("REDMESH_NODE_ID", "override-node")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "override-node", cfg.Node.ID)
}

func TestLoadFailsValidationWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("node:\n  id: x\n"), 0644))

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	require.Error(t, err)
}

func TestLoadSkipValidationBypassesSecretCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("node:\n  id: x\n"), 0644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Node.ID)
}

func TestMustLoadPanicsOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("node:\n  id: x\n"), 0644))

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "test"})
	})
}

func TestValidateConfigurationFlagsShortSecret(t *testing.T) {
	cfg := &Config{Node: NodeConfig{ID: "n"}, Secret: SecretConfig{Value: "short"}}
	setDefaults(cfg)

	issues := ValidateConfiguration(cfg)
	var found bool
	for _, i := range issues {
		if i.Field == "secret" && i.Level == "error" {
			found = true
		}
	}
	assert.True(t, found)
}
