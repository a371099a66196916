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
	// HostInvokesTotal counts adapter Invoke calls dispatched by the
	// host server, by peripheral type and outcome.
	HostInvokesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "invokes_total",
			Help:      "Total number of peripheral method invocations dispatched by the host",
		},
		[]string{"peripheral_type", "outcome"}, // ok, not_found, invoke_failed
	)

	// HostInvokeDuration tracks how long an adapter Invoke call takes.
	HostInvokeDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "invoke_duration_seconds",
			Help:      "Peripheral method invocation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"peripheral_type"},
	)

	// HostSnapshotsActive tracks the current number of live heavy-call
	// snapshots held for chunked pagination.
	HostSnapshotsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "snapshots_active",
			Help:      "Number of chunked-call snapshots currently held",
		},
	)

	// HostSubscriptionsActive tracks the current number of live
	// client subscriptions being polled.
	HostSubscriptionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "subscriptions_active",
			Help:      "Number of active client subscriptions",
		},
	)

	// HostPeripheralsExposed tracks how many peripherals the host is
	// currently announcing, after exclusion filtering.
	HostPeripheralsExposed = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "peripherals_exposed",
			Help:      "Number of peripherals currently exposed by the host, after exclusions",
		},
	)
)
