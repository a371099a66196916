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

package transport

import (
	"context"
	"sync"
)

// Hub is the shared in-process medium a set of MemChannel peers
// broadcast across, standing in for the in-game modem network during
// tests. It has no buffering discipline of its own beyond each
// peer's inbox; a peer that never Receives/Polls will pile up frames
// in memory, which is fine for the bounded-length tests this is
// grounded for.
type Hub struct {
	mu    sync.Mutex
	peers map[string]*MemChannel
}

// NewHub creates an empty in-process broadcast medium.
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*MemChannel)}
}

func (h *Hub) register(c *MemChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[c.id] = c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

func (h *Hub) deliver(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, peer := range h.peers {
		if id == f.From {
			continue
		}
		if f.To != "" && f.To != id {
			continue
		}
		peer.enqueue(f)
	}
}

// MemChannel is an in-process Channel implementation backed by a
// Hub, used by node tests that want deterministic, synchronous
// delivery instead of a real socket (grounded on the teacher's
// MockTransport capture-and-replay style in
// pkg/agent/transport/mock.go, generalized from a single-peer request
// mock to a multi-peer broadcast medium).
type MemChannel struct {
	id  string
	hub *Hub

	mu      sync.Mutex
	inbox   []Frame
	waiters []chan struct{}
	handler Handler
	closed  bool
}

// NewMemChannel joins id onto hub as a new peer.
func NewMemChannel(hub *Hub, id string) *MemChannel {
	c := &MemChannel{id: id, hub: hub}
	hub.register(c)
	return c
}

func (c *MemChannel) enqueue(f Frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbox = append(c.inbox, f)
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if c.handler != nil {
		c.handler(f)
	}
}

func (c *MemChannel) Broadcast(ctx context.Context, payload string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.hub.deliver(Frame{From: c.id, Payload: payload})
	return nil
}

func (c *MemChannel) SendTo(ctx context.Context, peer string, payload string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.hub.deliver(Frame{From: c.id, To: peer, Payload: payload})
	return nil
}

func (c *MemChannel) Receive(ctx context.Context) (Frame, error) {
	for {
		c.mu.Lock()
		if len(c.inbox) > 0 {
			f := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.mu.Unlock()
			return f, nil
		}
		if c.closed {
			c.mu.Unlock()
			return Frame{}, ErrClosed
		}
		wait := make(chan struct{})
		c.waiters = append(c.waiters, wait)
		c.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

func (c *MemChannel) Poll() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.inbox
	c.inbox = nil
	return out
}

func (c *MemChannel) RegisterHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *MemChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	c.hub.unregister(c.id)
	return nil
}
