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
	// CacheHitsTotal counts proxycache.Proxy.Call resolutions by the
	// cache tier that served them: fresh, stale, or miss (an expired or
	// absent entry, which falls through to a blocking network call).
	CacheHitsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of proxy cache lookups, by resulting tier",
		},
		[]string{"tier"},
	)

	// CacheAsyncRefreshTotal counts background refreshes fired for a
	// stale cache hit.
	CacheAsyncRefreshTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "async_refresh_total",
			Help:      "Total number of debounced async refreshes fired for stale cache hits",
		},
		[]string{"outcome"}, // success, error
	)

	// CacheDisconnectsTotal counts transitions of a proxy from
	// connected to disconnected after consecutive blocking failures.
	CacheDisconnectsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "disconnects_total",
			Help:      "Total number of proxy disconnects after consecutive blocking failures",
		},
	)

	// CacheActiveProxies tracks how many per-peripheral proxies a
	// Cache currently holds.
	CacheActiveProxies = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "active_proxies",
			Help:      "Number of peripheral proxies currently held by the cache",
		},
	)
)
