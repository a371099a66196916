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
	"time"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/wire"
)

// subscriptionEntry is spec §3's per-(clientId, peripheralName, method,
// args) Subscription: the scheduler re-invokes the underlying method
// at intervalMs and pushes a PERIPH_STATE_PUSH only when the result
// actually changed.
type subscriptionEntry struct {
	client         string
	peripheralName string
	method         string
	args           json.RawMessage
	event          string
	interval       time.Duration
	nextAt         time.Time
	lastHash       string
	seen           bool
}

func subscriptionKey(client, peripheralName, method string, args json.RawMessage) string {
	return envelope.Hash(client, peripheralName, method, string(args))
}

func (s *Server) handleSubscribe(from string, msg wire.Message) {
	var data wire.SubscribeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.log.Warn("dropping malformed subscribe", logger.Error(err))
		return
	}
	interval := s.defaultSubscribePeriod
	if data.IntervalMs > 0 {
		interval = time.Duration(data.IntervalMs) * time.Millisecond
	}

	key := subscriptionKey(from, data.Peripheral, data.Method, data.Args)
	s.mu.Lock()
	s.subs[key] = &subscriptionEntry{
		client:         from,
		peripheralName: data.Peripheral,
		method:         data.Method,
		args:           data.Args,
		event:          data.Event,
		interval:       interval,
		nextAt:         time.Now(),
	}
	count := len(s.subs)
	s.mu.Unlock()
	metrics.HostSubscriptionsActive.Set(float64(count))
}

func (s *Server) handleUnsubscribe(msg wire.Message) {
	var data wire.SubscribeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}
	// The unsubscribing client is whichever client registered the
	// subscription; since SubscribeData carries no client id of its
	// own, every subscription this peripheral/method/args triple
	// matches (regardless of client) is removed, mirroring the
	// at-most-one-per-client assumption of a cooperative mesh where a
	// client only ever unsubscribes its own subscriptions.
	s.mu.Lock()
	for key, entry := range s.subs {
		if entry.peripheralName == data.Peripheral && entry.method == data.Method && string(entry.args) == string(data.Args) {
			delete(s.subs, key)
		}
	}
	count := len(s.subs)
	s.mu.Unlock()
	metrics.HostSubscriptionsActive.Set(float64(count))
}

// pollSubscriptions is the subscription scheduler spec §4.8 describes:
// it invokes each due subscription's underlying method and pushes a
// PERIPH_STATE_PUSH only when the resultHash changed since the last
// push for that subscription.
func (s *Server) pollSubscriptions(ctx context.Context) {
	now := time.Now()
	due := s.dueSubscriptions(now)

	for key, entry := range due {
		adapter, ok := s.adapterFor(entry.peripheralName)
		if !ok {
			continue
		}
		raw, err := s.invoke(ctx, adapter, entry.method, entry.args)
		if err != nil {
			s.log.Debug("subscription poll invoke failed", logger.Peripheral(entry.peripheralName), logger.Error(err))
			continue
		}
		hash := envelope.Hash(string(raw))

		s.mu.Lock()
		current, ok := s.subs[key]
		if !ok {
			s.mu.Unlock()
			continue
		}
		current.nextAt = now.Add(current.interval)
		unchanged := current.seen && current.lastHash == hash
		current.lastHash = hash
		current.seen = true
		s.mu.Unlock()

		if unchanged {
			continue
		}
		push := wire.NewStatePush(wire.StatePushData{
			Peripheral: entry.peripheralName,
			Method:     entry.method,
			Args:       entry.args,
			Results:    raw,
			Meta:       &wire.Meta{ResultHash: hash},
			Event:      entry.event,
			HostID:     s.selfID,
		})
		if err := s.link.SendTo(ctx, entry.client, push); err != nil {
			s.log.Warn("failed to push subscription state", logger.String("to", entry.client), logger.Error(err))
		}
	}
}

func (s *Server) dueSubscriptions(now time.Time) map[string]subscriptionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := make(map[string]subscriptionEntry)
	for key, entry := range s.subs {
		if !now.Before(entry.nextAt) {
			due[key] = *entry
		}
	}
	return due
}
