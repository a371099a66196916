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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemChannelBroadcastReachesAllPeersButNotSender(t *testing.T) {
	hub := NewHub()
	a := NewMemChannel(hub, "A")
	b := NewMemChannel(hub, "B")
	c := NewMemChannel(hub, "C")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	require.NoError(t, a.Broadcast(context.Background(), `{"hello":1}`))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fb, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", fb.From)
	assert.Equal(t, `{"hello":1}`, fb.Payload)

	fc, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", fc.From)

	assert.Empty(t, a.Poll(), "sender never receives its own broadcast")
}

func TestMemChannelSendToIsDirected(t *testing.T) {
	hub := NewHub()
	a := NewMemChannel(hub, "A")
	b := NewMemChannel(hub, "B")
	c := NewMemChannel(hub, "C")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	require.NoError(t, a.SendTo(context.Background(), "B", "direct"))

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, b.Poll(), 1)
	assert.Empty(t, c.Poll(), "SendTo must not reach a peer it wasn't addressed to")
}

func TestMemChannelRegisterHandlerFiresOnDeliver(t *testing.T) {
	hub := NewHub()
	a := NewMemChannel(hub, "A")
	b := NewMemChannel(hub, "B")
	defer a.Close()
	defer b.Close()

	received := make(chan Frame, 1)
	b.RegisterHandler(func(f Frame) { received <- f })

	require.NoError(t, a.Broadcast(context.Background(), "ping"))

	select {
	case f := <-received:
		assert.Equal(t, "ping", f.Payload)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestMemChannelReceiveUnblocksOnContextCancel(t *testing.T) {
	hub := NewHub()
	a := NewMemChannel(hub, "A")
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemChannelCloseUnblocksReceiveAndRejectsSends(t *testing.T) {
	hub := NewHub()
	a := NewMemChannel(hub, "A")

	done := make(chan error, 1)
	go func() {
		_, err := a.Receive(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}

	assert.ErrorIs(t, a.Broadcast(context.Background(), "x"), ErrClosed)
}

func TestWSChannelDialUnreachableFails(t *testing.T) {
	ch := NewWSChannel("node-A")
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := ch.Dial(ctx, "node-B", "ws://127.0.0.1:1/mesh")
	assert.Error(t, err, "dialing a closed port must fail")
}

func TestWSChannelSendToUnknownPeerFails(t *testing.T) {
	ch := NewWSChannel("node-A")
	defer ch.Close()

	err := ch.SendTo(context.Background(), "node-Z", "payload")
	assert.Error(t, err)
}

func TestWSChannelPeerCountStartsZero(t *testing.T) {
	ch := NewWSChannel("node-A")
	defer ch.Close()
	assert.Equal(t, 0, ch.PeerCount())
}

func TestPreferLongRangeRanksRelayAboveDirect(t *testing.T) {
	candidates := []Endpoint{
		{URL: "ws://127.0.0.1:1/direct"},
		{URL: "ws://127.0.0.1:2/relay", LongRange: true},
	}
	assert.Equal(t, 1, PreferLongRange(candidates))
}

func TestPreferLongRangeFallsBackToFirst(t *testing.T) {
	candidates := []Endpoint{
		{URL: "ws://127.0.0.1:1/direct"},
		{URL: "ws://127.0.0.1:2/also-direct"},
	}
	assert.Equal(t, 0, PreferLongRange(candidates))
}

func TestWSChannelOpenOnlyDialsThePreferredCandidate(t *testing.T) {
	ch := NewWSChannel("node-A")
	defer ch.Close()

	candidates := []Endpoint{
		{URL: "ws://127.0.0.1:1/direct"},
		{URL: "ws://127.0.0.1:2/relay", LongRange: true},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := ch.Open(ctx, "node-B", candidates, PreferLongRange)
	require.Error(t, err, "both candidates are unreachable")
	assert.Contains(t, err.Error(), "127.0.0.1:2", "Open must attempt only the long-range candidate")
	assert.NotContains(t, err.Error(), "127.0.0.1:1", "the lower-ranked candidate must never be dialed")
}

func TestWSChannelOpenRequiresACandidate(t *testing.T) {
	ch := NewWSChannel("node-A")
	defer ch.Close()
	err := ch.Open(context.Background(), "node-B", nil, nil)
	assert.Error(t, err)
}
