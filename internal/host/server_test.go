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

package host

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

func newTestLink(t *testing.T, hub *transport.Hub, id string) *transport.Link {
	t.Helper()
	sc, err := envelope.NewSecurityContext("0123456789abcdef")
	require.NoError(t, err)
	codec := envelope.NewCodec(sc, envelope.NewNonceCache(envelope.DefaultNonceExpiry), envelope.DefaultMaxMessageAge)
	return transport.NewLink(transport.NewMemChannel(hub, id), codec)
}

func newChestAdapter() *peripheral.MockAdapter {
	a := peripheral.NewMockAdapter("inv0", "minecraft:chest", []string{"list", "getItems"})
	a.Results["list"] = json.RawMessage(`{"1":{"name":"minecraft:cobblestone","count":64}}`)
	return a
}

func TestHandleDiscoverRepliesWithFullInventory(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	chest := newChestAdapter()
	srv := NewServer("hostA", "computer_1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{chest}
	}))
	srv.Rescan()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.handleDiscover(ctx, "client", wire.NewDiscover())

	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.PeriphList, in.Message.Type)

	var data wire.ListData
	require.NoError(t, json.Unmarshal(in.Message.Data, &data))
	assert.Equal(t, "hostA", data.HostID)
	require.Len(t, data.Peripherals, 1)
	assert.Equal(t, "inv0", data.Peripherals[0].Name)
}

func TestScanExcludesConfiguredTypes(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	defer hostLink.Close()

	chest := newChestAdapter()
	monitor := peripheral.NewMockAdapter("mon0", "minecraft:monitor", []string{"write"})
	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{chest, monitor}
	}))
	srv.Rescan()

	_, descriptors := srv.snapshot()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "inv0", descriptors[0].Name)
}

func TestHandleCallInvokeFailedOnPanickingAdapter(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	chest := peripheral.NewMockAdapter("inv0", "minecraft:chest", []string{"list"})
	chest.Panics["list"] = true
	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{chest}
	}))
	srv.Rescan()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	call := wire.NewCall("inv0", "list", nil, nil)
	go srv.handleCall(ctx, "client", call)

	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.PeriphError, in.Message.Type)
	var data wire.ErrorData
	require.NoError(t, json.Unmarshal(in.Message.Data, &data))
	assert.Equal(t, ErrInvokeFailed, data.Error)
}

func TestHandleCallPeripheralNotFound(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter { return nil }))
	srv.Rescan()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.handleCall(ctx, "client", wire.NewCall("missing", "list", nil, nil))

	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	var data wire.ErrorData
	require.NoError(t, json.Unmarshal(in.Message.Data, &data))
	assert.Equal(t, ErrPeripheralNotFound, data.Error)
}

func heavyRows(n int) json.RawMessage {
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"name":        fmt.Sprintf("item_%03d", i),
			"displayName": fmt.Sprintf("Item %d", i),
			"count":       i,
			"isCraftable": false,
			"nbt":         "irrelevant-field-not-whitelisted",
		}
	}
	b, _ := json.Marshal(rows)
	return b
}

func TestHandleCallChunksHeavyMethodAndStoresSnapshot(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	bridge := peripheral.NewMockAdapter("bridge", "meBridge", []string{"getItems"})
	bridge.Results["getItems"] = heavyRows(450)
	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{bridge}
	}))
	srv.Rescan()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.handleCall(ctx, "client", wire.NewCall("bridge", "getItems", nil, &wire.CallOptions{Limit: 200}))

	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	var data wire.ResultData
	require.NoError(t, json.Unmarshal(in.Message.Data, &data))
	require.NotNil(t, data.Meta)
	assert.True(t, data.Meta.Chunked)
	assert.False(t, data.Meta.Done)
	assert.Equal(t, 450, data.Meta.Total)
	assert.Equal(t, 200, data.Meta.Limit)
	assert.NotEmpty(t, data.Meta.QueryID)

	var page []map[string]interface{}
	require.NoError(t, json.Unmarshal(data.Results, &page))
	assert.Len(t, page, 200)
	assert.NotContains(t, page[0], "nbt")
}

func TestHandleCallUnchangedShortCircuit(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	bridge := peripheral.NewMockAdapter("bridge", "meBridge", []string{"getItems"})
	bridge.Results["getItems"] = heavyRows(10)
	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter {
		return []peripheral.Adapter{bridge}
	}))
	srv.Rescan()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go srv.handleCall(ctx, "client", wire.NewCall("bridge", "getItems", nil, nil))
	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	var first wire.ResultData
	require.NoError(t, json.Unmarshal(in.Message.Data, &first))
	hash := first.Meta.ResultHash

	go srv.handleCall(ctx, "client", wire.NewCall("bridge", "getItems", nil, &wire.CallOptions{ResultHash: hash}))
	in2, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	var second wire.ResultData
	require.NoError(t, json.Unmarshal(in2.Message.Data, &second))
	assert.True(t, second.Meta.Unchanged)
	assert.Empty(t, second.Results)
}

func TestHeavyPageRequiresSnapshot(t *testing.T) {
	hub := transport.NewHub()
	hostLink := newTestLink(t, hub, "hostA")
	clientLink := newTestLink(t, hub, "client")
	defer hostLink.Close()
	defer clientLink.Close()

	srv := NewServer("hostA", "c1", hostLink, AdapterSourceFunc(func() []peripheral.Adapter { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bridge := peripheral.NewMockAdapter("bridge", "meBridge", []string{"getItems"})
	go srv.handleHeavyPage(ctx, "client", "req1", bridge.Name(), "getItems", &wire.CallOptions{Offset: 200, Page: true})

	in, err := clientLink.Receive(ctx)
	require.NoError(t, err)
	var data wire.ErrorData
	require.NoError(t, json.Unmarshal(in.Message.Data, &data))
	assert.Equal(t, ErrSnapshotRequired, data.Error)
}
