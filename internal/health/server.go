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

package health

import (
	"encoding/json"
	"net/http"
)

type systemHealth struct {
	Status Status                  `json:"status"`
	Checks map[string]*CheckResult `json:"checks"`
}

// Handler returns an http.Handler that runs every registered check and
// replies with 200 when healthy/degraded or 503 when any check is
// unhealthy.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := c.CheckAll(r.Context())
		status := OverallStatus(results)

		w.Header().Set("Content-Type", "application/json")
		if status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(systemHealth{Status: status, Checks: results})
	})
}

// StartServer serves the Checker's Handler at path on addr, blocking
// until the listener fails.
func StartServer(addr, path string, c *Checker) error {
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())
	return http.ListenAndServe(addr, mux)
}
