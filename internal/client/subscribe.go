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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/wire"
)

// PushHandler receives every PERIPH_STATE_PUSH matching the
// subscription it was registered against.
type PushHandler func(wire.StatePushData)

// pushTable maps a local (peripheral, method, args) subscription key
// to the handler Subscribe registered for it. It deliberately does not
// key by client id: there is exactly one Client per process, so the
// "which client" dimension host.Server's equivalent table carries is
// always this node.
type pushTable struct {
	mu       sync.Mutex
	handlers map[string]PushHandler
}

func newPushTable() *pushTable {
	return &pushTable{handlers: make(map[string]PushHandler)}
}

func subscribeKey(peripheralName, method string, args json.RawMessage) string {
	return envelope.Hash(peripheralName, method, string(args))
}

// Subscribe resolves nameOrKey to its owning host and sends a
// PERIPH_SUBSCRIBE, registering onPush to fire on every matching
// PERIPH_STATE_PUSH (spec §4.7/§3 "Subscription").
func (c *Client) Subscribe(ctx context.Context, nameOrKey, method string, args json.RawMessage, intervalMs int, event string, onPush PushHandler) error {
	rp, ok := c.Registry.Wrap(nameOrKey)
	if !ok {
		return fmt.Errorf("client: unknown peripheral %q", nameOrKey)
	}

	key := subscribeKey(rp.Name, method, args)
	c.subs.mu.Lock()
	c.subs.handlers[key] = onPush
	c.subs.mu.Unlock()

	msg := wire.NewSubscribe(wire.SubscribeData{
		Peripheral: rp.Name,
		Method:     method,
		Args:       args,
		IntervalMs: intervalMs,
		Event:      event,
	})
	return c.link.SendTo(ctx, rp.HostID, msg)
}

// Unsubscribe resolves nameOrKey to its owning host, sends a
// PERIPH_UNSUBSCRIBE, and removes the local push handler.
func (c *Client) Unsubscribe(ctx context.Context, nameOrKey, method string, args json.RawMessage) error {
	rp, ok := c.Registry.Wrap(nameOrKey)
	if !ok {
		return fmt.Errorf("client: unknown peripheral %q", nameOrKey)
	}

	key := subscribeKey(rp.Name, method, args)
	c.subs.mu.Lock()
	delete(c.subs.handlers, key)
	c.subs.mu.Unlock()

	msg := wire.NewUnsubscribe(wire.SubscribeData{
		Peripheral: rp.Name,
		Method:     method,
		Args:       args,
	})
	return c.link.SendTo(ctx, rp.HostID, msg)
}

func (c *Client) handleStatePush(msg wire.Message) {
	var data wire.StatePushData
	if err := unmarshalOrLog(c.log, msg.Data, &data, "state push"); err != nil {
		return
	}

	key := subscribeKey(data.Peripheral, data.Method, data.Args)
	c.subs.mu.Lock()
	handler, ok := c.subs.handlers[key]
	c.subs.mu.Unlock()
	if !ok {
		return
	}
	handler(data)
}

func unmarshalOrLog(log logger.Logger, raw json.RawMessage, v interface{}, what string) error {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn("dropping malformed "+what, logger.Error(err))
		return err
	}
	return nil
}
