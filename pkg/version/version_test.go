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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortWithoutGitCommit(t *testing.T) {
	old := GitCommit
	GitCommit = ""
	defer func() { GitCommit = old }()

	assert.Equal(t, Version, Short())
}

func TestShortWithGitCommit(t *testing.T) {
	oldCommit, oldVersion := GitCommit, Version
	GitCommit = "abcdef1234567890"
	Version = "0.1.0"
	defer func() { GitCommit = oldCommit; Version = oldVersion }()

	assert.Equal(t, "0.1.0-abcdef1", Short())
}

func TestStringIncludesPlatform(t *testing.T) {
	s := String()
	info := Get()
	assert.Contains(t, s, info.Version)
	assert.Contains(t, s, info.Platform)
}

func TestGetModuleVersionFallsBackToVersion(t *testing.T) {
	assert.NotEmpty(t, GetModuleVersion())
}
