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

package proxycache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/rpc"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
)

func newLink(t *testing.T, hub *transport.Hub, id string) *transport.Link {
	t.Helper()
	sc, err := envelope.NewSecurityContext("0123456789abcdef")
	require.NoError(t, err)
	codec := envelope.NewCodec(sc, envelope.NewNonceCache(envelope.DefaultNonceExpiry), envelope.DefaultMaxMessageAge)
	return transport.NewLink(transport.NewMemChannel(hub, id), codec)
}

type fakeHost struct {
	link    *transport.Link
	calls   int32
	respond func(wire.Message) wire.Message
	stop    chan struct{}
	once    sync.Once
}

func newFakeHost(t *testing.T, hub *transport.Hub, id string, respond func(wire.Message) wire.Message) *fakeHost {
	h := &fakeHost{link: newLink(t, hub, id), respond: respond, stop: make(chan struct{})}
	go h.run()
	return h
}

func (h *fakeHost) run() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		in, err := h.link.Receive(ctx)
		cancel()
		if err != nil {
			select {
			case <-h.stop:
				return
			default:
				continue
			}
		}
		if in.Message.Type != wire.PeriphCall {
			continue
		}
		atomic.AddInt32(&h.calls, 1)
		resp := h.respond(in.Message)
		_ = h.link.SendTo(context.Background(), in.From, resp)
	}
}

func (h *fakeHost) Close() {
	h.once.Do(func() { close(h.stop) })
	h.link.Close()
}

func (h *fakeHost) callCount() int { return int(atomic.LoadInt32(&h.calls)) }

func startDispatcher(link *transport.Link, engine *rpc.Engine, stop <-chan struct{}) {
	go func() {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			in, err := link.Receive(ctx)
			cancel()
			if err != nil {
				select {
				case <-stop:
					return
				default:
					continue
				}
			}
			switch in.Message.Type {
			case wire.PeriphResult, wire.PeriphError, wire.PeriphList:
				engine.HandleResponse(in.Message)
			}
		}
	}()
}

func newTestProxy(t *testing.T, hub *transport.Hub, clientID, hostID string) (*Proxy, func()) {
	t.Helper()
	clientLink := newLink(t, hub, clientID)
	engine := rpc.New(clientID, clientLink)
	stop := make(chan struct{})
	startDispatcher(clientLink, engine, stop)
	p := NewProxy(engine, hostID, "inv0")
	return p, func() { close(stop); clientLink.Close() }
}

func TestProxyCallsWithinTTLHitCacheOnce(t *testing.T) {
	hub := transport.NewHub()
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		return wire.NewResult(req.RequestID, json.RawMessage(`{"count":1}`), nil)
	})
	defer host.Close()

	p, cleanup := newTestProxy(t, hub, "client", "hostA")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		r, err := p.Call(ctx, "list", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":1}`, string(r))
	}
	assert.Equal(t, 1, host.callCount(), "repeated calls within CACHE_TTL must not re-hit the network")
}

func TestProxyStaleHitTriggersAsyncRefresh(t *testing.T) {
	hub := transport.NewHub()
	var value int32 = 1
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		n := atomic.AddInt32(&value, 1)
		return wire.NewResult(req.RequestID, json.RawMessage(`{"count":`+itoa(int(n))+`}`), nil)
	})
	defer host.Close()

	p, cleanup := newTestProxy(t, hub, "client", "hostA")
	defer cleanup()
	p.cacheTTL = 10 * time.Millisecond
	p.cacheExpire = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.Call(ctx, "list", nil)
	require.NoError(t, err)
	require.Equal(t, 1, host.callCount())

	time.Sleep(30 * time.Millisecond) // entry is now stale, not expired

	r, err := p.Call(ctx, "list", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, string(r), "a stale hit must return the cached value, not block on refresh")

	require.Eventually(t, func() bool {
		return host.callCount() >= 2
	}, time.Second, 10*time.Millisecond, "stale hit must kick off a background refresh")
}

func TestProxyDisconnectsAfterConsecutiveFailures(t *testing.T) {
	hub := transport.NewHub()
	// no host registered — every call times out.
	clientLink := newLink(t, hub, "client")
	defer clientLink.Close()
	engine := rpc.New("client", clientLink).WithSweepInterval(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	p := NewProxy(engine, "ghost", "inv0", WithDefaultRPCTimeout(20*time.Millisecond))
	p.cooldown = 50 * time.Millisecond

	for i := 0; i < DefaultMaxFailures; i++ {
		_, err := p.blockingCall(ctx, "list", nil)
		assert.Error(t, err)
	}
	assert.True(t, p.disconnected)
	assert.Equal(t, "timeout", p.LastFailureCategory())

	_, err := p.Call(ctx, "list", nil)
	assert.ErrorIs(t, err, rpc.ErrClosed, "a disconnected proxy must reject calls during the cooldown window")
}

func TestProxyReconnectBypassesCooldown(t *testing.T) {
	hub := transport.NewHub()
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		return wire.NewResult(req.RequestID, json.RawMessage(`{"ok":true}`), nil)
	})
	defer host.Close()

	p, cleanup := newTestProxy(t, hub, "client", "hostA")
	defer cleanup()
	p.cooldown = time.Hour

	p.mu.Lock()
	p.disconnected = true
	p.disconnectedAt = time.Now()
	p.consecutiveFailures = DefaultMaxFailures
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Call(ctx, "list", nil)
	assert.ErrorIs(t, err, rpc.ErrClosed)

	p.Reconnect()
	assert.True(t, p.Connected())

	_, err = p.Call(ctx, "list", nil)
	assert.NoError(t, err)
}

func TestProxyActionMethodsAreNeverCached(t *testing.T) {
	hub := transport.NewHub()
	host := newFakeHost(t, hub, "hostA", func(req wire.Message) wire.Message {
		return wire.NewResult(req.RequestID, json.RawMessage(`{"ok":true}`), nil)
	})
	defer host.Close()

	p, cleanup := newTestProxy(t, hub, "client", "hostA")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := p.Call(ctx, "craftItem", json.RawMessage(`{"name":"minecraft:stick"}`))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, host.callCount(), "action methods must always issue a blocking network call")
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
