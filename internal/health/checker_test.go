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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllReportsHealthyWithNoChecks(t *testing.T) {
	c := NewChecker(time.Second, nil)
	results := c.CheckAll(context.Background())
	assert.Empty(t, results)
	assert.Equal(t, StatusHealthy, OverallStatus(results))
}

func TestCheckAllReportsUnhealthyCheck(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("transport", func(ctx context.Context) error { return errors.New("boom") })
	c.Register("registry", func(ctx context.Context) error { return nil })

	results := c.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusUnhealthy, results["transport"].Status)
	assert.Equal(t, StatusHealthy, results["registry"].Status)
	assert.Equal(t, StatusUnhealthy, OverallStatus(results))
}

func TestCheckAllCachesResultsWithinTTL(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.cacheTTL = time.Hour
	calls := 0
	c.Register("counter", func(ctx context.Context) error { calls++; return nil })

	c.CheckAll(context.Background())
	c.CheckAll(context.Background())
	assert.Equal(t, 1, calls)
}

func TestTransportCheckFailsAtMaxFailures(t *testing.T) {
	check := TransportCheck(func() int { return 3 }, 3)
	assert.Error(t, check(context.Background()))

	check2 := TransportCheck(func() int { return 1 }, 3)
	assert.NoError(t, check2(context.Background()))
}

func TestRegistrySizeCheckIgnoresEarlyBoot(t *testing.T) {
	check := RegistrySizeCheck(func() int { return 0 }, time.Hour, time.Now())
	assert.NoError(t, check(context.Background()))
}

func TestHandlerServesJSONStatus(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("ok", func(ctx context.Context) error { return nil })

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("broken", func(ctx context.Context) error { return errors.New("down") })

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
