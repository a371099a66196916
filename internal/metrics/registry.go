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

// Package metrics exposes the fabric's Prometheus metrics: one
// dedicated registry and namespace shared by every component so a
// single /metrics handler (see server.go) covers the whole node,
// whether it's running as a host or a client.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "redmesh"

// Registry is the prometheus.Registerer every metric in this package
// registers against, standing in for promauto's DefaultRegisterer so
// a node can run its own isolated registry in tests without stepping
// on package-level global state.
var Registry = prometheus.NewRegistry()
