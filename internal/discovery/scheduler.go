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

package discovery

import (
	"time"

	"github.com/redmesh-project/redmesh/internal/scheduler"
)

// HeartbeatScheduler is scheduler.Periodic under the name this
// component's spec section uses. Nothing in the module builds one
// through this alias: internal/host creates its announce heartbeat with
// scheduler.New, and the discover-timeout sweep runs as a hook on the
// RPC engine's sweep.
type HeartbeatScheduler = scheduler.Periodic

// NewHeartbeatScheduler creates a scheduler with the given period.
func NewHeartbeatScheduler(interval time.Duration) *HeartbeatScheduler {
	return scheduler.New(interval)
}
