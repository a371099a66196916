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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redmesh-project/redmesh/internal/logger"
)

// wireFrame is the JSON shape written to and read from the socket.
// The sender sets From to its own node id on every frame and the
// receiver takes it as given. To is set only by a direct SendTo; a
// receiver drops a frame addressed to another node.
type wireFrame struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Payload string `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSChannel is the concrete Channel realized over gorilla/websocket,
// grounded on pkg/agent/transport/websocket/{server,client}.go: an
// upgrader-backed Accept side tracking live connections under a
// mutex, and a Dial side holding persistent outbound connections,
// both feeding a single inbox a Receive/Poll caller drains.
//
// A dialed connection knows its peer's node id from the caller; an
// accepted one learns it from the From field of the first frame the
// peer sends (see readLoop). Per the endpoint-preference rule of spec
// §4.2/§9, when two connections exist to the same peer, the most
// recently established one wins and the other is closed.
type WSChannel struct {
	id string

	writeTimeout time.Duration

	mu      sync.RWMutex
	conns   map[string]*wsConn // peer id -> connection
	handler Handler

	inboxMu sync.Mutex
	inbox   []Frame
	waiters []chan struct{}
	closed  bool

	log logger.Logger
}

type wsConn struct {
	peerID string
	conn   *websocket.Conn
	mu     sync.Mutex // guards writes; gorilla conns are not write-concurrent-safe
}

// NewWSChannel creates a WSChannel identifying itself as id on the
// mesh.
func NewWSChannel(id string) *WSChannel {
	return &WSChannel{
		id:           id,
		writeTimeout: 10 * time.Second,
		conns:        make(map[string]*wsConn),
		log:          logger.ForComponent("transport", id),
	}
}

// UpgradeHandler returns an http.Handler suitable for mounting on a
// ServeMux (e.g. "/mesh") that accepts inbound peer connections,
// grounded on websocket.server.go's Handler().
func (c *WSChannel) UpgradeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.log.Warn("websocket upgrade failed", logger.Error(err))
			return
		}
		c.adopt(conn, "")
	})
}

// Dial connects outbound to a peer's mesh endpoint and adopts the
// resulting connection as peerID.
func (c *WSChannel) Dial(ctx context.Context, peerID, url string) error {
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: dial %s failed (HTTP %d): %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("transport: dial %s failed: %w", url, err)
	}
	c.adopt(conn, peerID)
	return nil
}

// adopt starts the read loop for a freshly established connection. If
// peerID is unknown (inbound, unauthenticated-by-address) it is
// learned from the first wireFrame.From the peer sends; the caller is
// expected to send one identifying frame immediately after connect.
func (c *WSChannel) adopt(conn *websocket.Conn, peerID string) {
	wc := &wsConn{peerID: peerID, conn: conn}
	if peerID != "" {
		c.replacePeer(peerID, wc)
	}
	go c.readLoop(wc)
}

// replacePeer applies the endpoint-preference rule: a newly
// established connection to a peer supersedes any prior one.
func (c *WSChannel) replacePeer(peerID string, wc *wsConn) {
	c.mu.Lock()
	old, had := c.conns[peerID]
	c.conns[peerID] = wc
	c.mu.Unlock()
	if had && old.conn != wc.conn {
		_ = old.conn.Close()
	}
}

func (c *WSChannel) readLoop(wc *wsConn) {
	defer func() {
		_ = wc.conn.Close()
		c.mu.Lock()
		if wc.peerID != "" && c.conns[wc.peerID] == wc {
			delete(c.conns, wc.peerID)
		}
		c.mu.Unlock()
	}()

	for {
		var wf wireFrame
		if err := wc.conn.ReadJSON(&wf); err != nil {
			c.log.Debug("websocket read loop ended", logger.Error(err))
			return
		}
		if wf.From != "" && wc.peerID == "" {
			wc.peerID = wf.From
			c.replacePeer(wf.From, wc)
		}
		if wf.To != "" && wf.To != c.id {
			continue
		}
		c.deliver(Frame{From: wf.From, To: wf.To, Payload: wf.Payload})
	}
}

func (c *WSChannel) deliver(f Frame) {
	c.inboxMu.Lock()
	if c.closed {
		c.inboxMu.Unlock()
		return
	}
	c.inbox = append(c.inbox, f)
	waiters := c.waiters
	c.waiters = nil
	handler := c.handler
	c.inboxMu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if handler != nil {
		handler(f)
	}
}

func (c *WSChannel) writeTo(wc *wsConn, wf wireFrame) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	_ = wc.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return wc.conn.WriteJSON(wf)
}

// Broadcast fans payload out to every connected peer. A write failure
// to one peer does not stop delivery to the rest; the first error
// encountered, if any, is returned after all sends are attempted.
func (c *WSChannel) Broadcast(ctx context.Context, payload string) error {
	c.mu.RLock()
	peers := make([]*wsConn, 0, len(c.conns))
	for _, wc := range c.conns {
		peers = append(peers, wc)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, wc := range peers {
		if err := c.writeTo(wc, wireFrame{From: c.id, Payload: payload}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendTo delivers payload to a single named peer.
func (c *WSChannel) SendTo(ctx context.Context, peer string, payload string) error {
	c.mu.RLock()
	wc, ok := c.conns[peer]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no connection to peer %q", peer)
	}
	return c.writeTo(wc, wireFrame{From: c.id, To: peer, Payload: payload})
}

// Receive blocks for the next inbound frame.
func (c *WSChannel) Receive(ctx context.Context) (Frame, error) {
	for {
		c.inboxMu.Lock()
		if len(c.inbox) > 0 {
			f := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.inboxMu.Unlock()
			return f, nil
		}
		if c.closed {
			c.inboxMu.Unlock()
			return Frame{}, ErrClosed
		}
		wait := make(chan struct{})
		c.waiters = append(c.waiters, wait)
		c.inboxMu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// Poll drains all buffered frames without blocking.
func (c *WSChannel) Poll() []Frame {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	out := c.inbox
	c.inbox = nil
	return out
}

// RegisterHandler installs a push-style callback for inbound frames.
func (c *WSChannel) RegisterHandler(h Handler) {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	c.handler = h
}

// PeerCount reports the number of currently connected peers.
func (c *WSChannel) PeerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Close tears down every connection and unblocks any pending Receive.
func (c *WSChannel) Close() error {
	c.inboxMu.Lock()
	if c.closed {
		c.inboxMu.Unlock()
		return nil
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.inboxMu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, wc := range c.conns {
		_ = wc.conn.Close()
		delete(c.conns, id)
	}
	return nil
}
