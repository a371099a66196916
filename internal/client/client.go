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

// Package client is the client-side owning goroutine the concurrency
// model calls for alongside host.Server: it drains one transport.Link
// receive loop and routes each inbound message to whichever component
// (discovery, rpc engine, or this package's own subscription-push
// table) is the correct home for that message type, mirroring
// host.Server's buildDispatch/transport.Dispatch table on the other side
// of the wire.
package client

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/redmesh-project/redmesh/internal/discovery"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/proxycache"
	"github.com/redmesh-project/redmesh/internal/registry"
	"github.com/redmesh-project/redmesh/internal/rpc"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
)

// Client is the client-side node: it owns the registry, discovery,
// RPC engine, and proxy cache together, and is the single goroutine
// that reads link.Receive.
type Client struct {
	selfID string
	link   *transport.Link

	Registry *registry.Registry
	Discover *discovery.Discovery
	Engine   *rpc.Engine
	Cache    *proxycache.Cache

	subs     *pushTable
	log      logger.Logger
	dispatch *transport.Dispatch
}

// Option configures a Client at construction time.
type Option func(*options)

type options struct {
	discoverTimeout time.Duration
	proxyOpts       []proxycache.ProxyOption
}

// WithDiscoverTimeout overrides the deadline a pending PERIPH_DISCOVER
// is dropped after (config.TunablesConfig.DiscoverTimeout).
func WithDiscoverTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.discoverTimeout = d
		}
	}
}

// WithProxyOptions forwards proxycache.ProxyOptions to every Proxy this
// Client's Cache lazily creates (config.TunablesConfig's cache/retry
// tunables and config.MethodPolicy's extra action/heavy methods).
func WithProxyOptions(opts ...proxycache.ProxyOption) Option {
	return func(o *options) { o.proxyOpts = append(o.proxyOpts, opts...) }
}

// New wires a Client's components together for selfID, communicating
// over link. The returned Client must be started with Run before any
// Call/Subscribe will make progress.
func New(selfID string, link *transport.Link, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := registry.New()
	engine := rpc.New(selfID, link)
	disc := discovery.New(selfID, link, reg)
	if o.discoverTimeout > 0 {
		disc.WithDiscoverTimeout(o.discoverTimeout)
	}
	cache := proxycache.NewCache(reg, engine, o.proxyOpts...)

	engine.RegisterSweepHook(disc.SweepTimeouts)

	c := &Client{
		selfID:   selfID,
		link:     link,
		Registry: reg,
		Discover: disc,
		Engine:   engine,
		Cache:    cache,
		subs:     newPushTable(),
		log:      logger.ForComponent("client", selfID),
	}
	c.dispatch = c.buildDispatch()
	return c
}

// buildDispatch registers each message type this client cares about
// against the component that owns it, spec §4.2's "Dispatch maps
// message.type -> handler" realized at the application layer.
func (c *Client) buildDispatch() *transport.Dispatch {
	d := transport.NewDispatch()
	d.Handle(wire.PeriphAnnounce, func(ctx context.Context, _ string, msg wire.Message) { c.handleAnnounce(ctx, msg) })
	d.Handle(wire.PeriphList, func(_ context.Context, _ string, msg wire.Message) { c.handleList(msg) })
	d.Handle(wire.PeriphResult, func(_ context.Context, _ string, msg wire.Message) { c.Engine.HandleResponse(msg) })
	d.Handle(wire.PeriphError, func(_ context.Context, _ string, msg wire.Message) { c.Engine.HandleResponse(msg) })
	d.Handle(wire.PeriphStatePush, func(_ context.Context, _ string, msg wire.Message) { c.handleStatePush(msg) })
	d.Fallback(func(_ context.Context, _ string, msg wire.Message) {
		c.log.Debug("client ignoring message type not in its dispatch table", logger.String("type", string(msg.Type)))
	})
	return d
}

// Run starts the RPC engine's timeout sweep and blocks draining the
// link's receive loop until ctx is cancelled or the link errors.
func (c *Client) Run(ctx context.Context) error {
	c.Engine.Start(ctx)
	defer c.Engine.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.receiveLoop(ctx) })
	return g.Wait()
}

func (c *Client) receiveLoop(ctx context.Context) error {
	return c.dispatch.Run(ctx, c.link)
}

func (c *Client) handleAnnounce(ctx context.Context, msg wire.Message) {
	var data wire.AnnounceData
	if err := unmarshalOrLog(c.log, msg.Data, &data, "announce"); err != nil {
		return
	}
	c.Discover.HandleAnnounce(ctx, data)
}

func (c *Client) handleList(msg wire.Message) {
	var data wire.ListData
	if err := unmarshalOrLog(c.log, msg.Data, &data, "list"); err != nil {
		return
	}
	c.Discover.HandleList(msg.RequestID, data)
}
