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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnnouncesReceived counts PERIPH_ANNOUNCE messages handled by the
	// discovery layer.
	AnnouncesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "announces_received_total",
			Help:      "Total number of PERIPH_ANNOUNCE messages handled",
		},
		[]string{"triggered_discover"}, // true, false
	)

	// DiscoverRequestsTotal counts PERIPH_DISCOVER requests issued.
	DiscoverRequestsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "discover_requests_total",
			Help:      "Total number of PERIPH_DISCOVER requests sent",
		},
	)

	// DiscoverTimeoutsTotal counts pending discover requests the
	// timeout sweep gave up on.
	DiscoverTimeoutsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "discover_timeouts_total",
			Help:      "Total number of PERIPH_DISCOVER requests abandoned by the timeout sweep",
		},
	)

	// KnownHosts tracks the current number of distinct hosts in the
	// discovery layer's view.
	KnownHosts = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "known_hosts",
			Help:      "Number of distinct hosts currently known to discovery",
		},
	)
)
