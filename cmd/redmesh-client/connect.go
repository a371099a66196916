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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redmesh-project/redmesh/config"
	"github.com/redmesh-project/redmesh/internal/client"
	"github.com/redmesh-project/redmesh/internal/health"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/meshconn"
	"github.com/redmesh-project/redmesh/internal/proxycache"
)

// bootClient loads configuration, dials the mesh, and starts a
// client.Client's receive loop in the background. The returned cancel
// tears everything down; callers should defer it.
func bootClient(ctx context.Context) (*client.Client, context.CancelFunc, error) {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return nil, nil, err
	}
	log := meshconn.BuildLogger(cfg)

	runCtx, cancel := context.WithCancel(ctx)

	conn, err := meshconn.Dial(runCtx, cfg, log)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	c := client.New(cfg.Node.ID, conn.Link,
		client.WithDiscoverTimeout(cfg.Tunables.DiscoverTimeout),
		client.WithProxyOptions(
			proxycache.WithCacheTTL(cfg.Tunables.CacheTTL),
			proxycache.WithCacheExpire(cfg.Tunables.CacheExpire),
			proxycache.WithAsyncRetry(cfg.Tunables.AsyncRetry),
			proxycache.WithMaxFailures(cfg.Tunables.MaxConsecutiveFailures),
			proxycache.WithReconnectCooldown(cfg.Tunables.ReconnectCooldown),
			proxycache.WithDefaultRPCTimeout(cfg.Tunables.DefaultRPCTimeout),
			proxycache.WithExtraActions(cfg.Methods.ExtraActions),
			proxycache.WithExtraHeavy(cfg.Methods.ExtraHeavy),
		),
	)

	checker := health.NewChecker(5*time.Second, log)
	checker.Register("registry", health.RegistrySizeCheck(func() int { return c.Registry.Size() }, 10*time.Second, time.Now()))
	meshconn.StartAmbient(cfg, checker, log)

	go func() {
		if err := c.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error("client run loop exited", logger.Error(err))
		}
	}()

	teardown := func() {
		cancel()
		conn.Close()
	}
	return c, teardown, nil
}

// waitForPeripheral blocks until nameOrKey resolves in c.Registry (the
// same resolution Cache.Call/Subscribe use), the timeout elapses, or
// ctx is cancelled.
func waitForPeripheral(ctx context.Context, c *client.Client, nameOrKey string, timeout time.Duration) error {
	if nameOrKey == "" {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		if _, ok := c.Registry.Wrap(nameOrKey); ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for peripheral %q to appear", nameOrKey)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
