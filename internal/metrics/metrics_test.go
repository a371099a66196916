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
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsRegistered(t *testing.T) {
	if RPCCallsTotal == nil || RPCCallDuration == nil || RPCCoalescedTotal == nil {
		t.Fatal("rpc metrics must be non-nil after package init")
	}
	if CacheHitsTotal == nil || CacheDisconnectsTotal == nil {
		t.Fatal("cache metrics must be non-nil after package init")
	}
	if AnnouncesReceived == nil || KnownHosts == nil {
		t.Fatal("discovery metrics must be non-nil after package init")
	}
	if HostInvokesTotal == nil || HostSnapshotsActive == nil {
		t.Fatal("host metrics must be non-nil after package init")
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	RPCCallsTotal.WithLabelValues("list", "success").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redmesh_rpc_calls_total") {
		t.Fatal("expected redmesh_rpc_calls_total in metrics output")
	}
}
