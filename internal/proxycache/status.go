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

package proxycache

// State is the coarse health a Proxy or the whole Cache reports, spec
// §4.7's "query dependency/proxy state" scenario.
type State string

const (
	StatePending State = "pending"
	StateOK      State = "ok"
	StateError   State = "error"
	StateCached  State = "cached"
)

// DependencyStatus is the per-peripheral status record spec §4.7
// names: enough to answer "is this dependency up, and why not" without
// forcing a caller through a blocking Call.
type DependencyStatus struct {
	HostID              string `json:"hostId"`
	Peripheral          string `json:"peripheral"`
	State               State  `json:"state"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	LastFailureCategory string `json:"lastFailureCategory,omitempty"`
	Disconnected        bool   `json:"disconnected"`
}
