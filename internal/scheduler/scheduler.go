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

// Package scheduler provides the one ticker-driven periodic-task
// primitive every other package builds its background loop on
// (announce heartbeats, RPC timeout sweeps, activity polling,
// subscription polling, peer redial), grounded on the teacher's
// core/session/manager.go cleanup-ticker pattern (NewManager's
// time.NewTicker + runCleanup goroutine), generalized from "always
// cleanup sessions" to "run any periodic task."
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Periodic runs a function on a fixed interval until stopped.
type Periodic struct {
	interval time.Duration
	mu       sync.Mutex
	ticker   *time.Ticker
	stop     chan struct{}
	running  bool
}

// New creates a Periodic task runner with the given period.
func New(interval time.Duration) *Periodic {
	return &Periodic{interval: interval}
}

// Start begins calling fn every interval in a background goroutine.
// It is a no-op if already running. fn also runs once immediately so
// the first tick doesn't wait a full interval.
func (p *Periodic) Start(ctx context.Context, fn func(ctx context.Context)) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.stop = make(chan struct{})
	p.running = true
	ticker := p.ticker
	stop := p.stop
	p.mu.Unlock()

	fn(ctx)
	go func() {
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the task. Safe to call even if never started.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.ticker.Stop()
	close(p.stop)
	p.running = false
}

// Running reports whether the task is currently active.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
