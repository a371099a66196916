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
	// RPCCallsTotal counts every rpc.Engine.Call invocation by method
	// and outcome (success, timeout, remote_error, snapshot_required,
	// snapshot_expired, closed).
	RPCCallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total number of RPC calls dispatched, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// RPCCallDuration tracks call latency from dispatch to a resolved
	// response, including any chunked-page follow-ups.
	RPCCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method"},
	)

	// RPCCoalescedTotal counts calls that joined an in-flight identical
	// request in the engine's pending-request table rather than opening
	// a second network round trip.
	RPCCoalescedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "coalesced_total",
			Help:      "Total number of calls served by coalescing with an in-flight identical request",
		},
	)

	// RPCPendingRequests tracks the current size of the engine's
	// in-flight request table.
	RPCPendingRequests = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Number of RPC requests currently awaiting a response",
		},
	)

	// RPCChunkedPages counts follow-up page fetches issued while
	// draining a chunked response.
	RPCChunkedPages = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "chunked_pages_total",
			Help:      "Total number of chunked-response follow-up pages fetched",
		},
	)
)
