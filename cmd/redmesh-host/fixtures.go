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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/redmesh-project/redmesh/peripheral"
)

// fixtureFile is the on-disk shape of a peripheral fixture set. Real
// ComputerCraft hardware drivers are out of scope (spec's original
// "peripheral host" is the in-game mod); this is how redmesh-host gets
// something concrete to announce and serve in a real deployment or a
// demo, built on peripheral.MockAdapter the same way host/server_test.go
// builds its test fixtures.
type fixtureFile struct {
	Peripherals []fixtureAdapter `yaml:"peripherals"`
}

type fixtureAdapter struct {
	Name    string                     `yaml:"name"`
	Type    string                     `yaml:"type"`
	Methods []string                   `yaml:"methods"`
	Results map[string]json.RawMessage `yaml:"results"`
}

// loadFixtures reads path and builds one peripheral.MockAdapter per
// entry. A missing path yields no adapters rather than an error, so a
// host can be started with no local peripherals at all.
func loadFixtures(path string) ([]peripheral.Adapter, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fixtures: reading %s: %w", path, err)
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("fixtures: parsing %s: %w", path, err)
	}

	adapters := make([]peripheral.Adapter, 0, len(file.Peripherals))
	for _, f := range file.Peripherals {
		a := peripheral.NewMockAdapter(f.Name, f.Type, f.Methods)
		for method, result := range f.Results {
			a.Results[method] = result
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
