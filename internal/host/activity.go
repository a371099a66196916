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
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

// ActivityProbe is a cheap "is this peripheral active, and what's the
// small data" check (spec §4.8 "Activity summaries"), registered per
// peripheral type via WithActivityProbe. Unlike Invoke, a probe is
// expected to be cheap enough to run every ACTIVITY_POLL_INTERVAL
// against every matching peripheral.
type ActivityProbe interface {
	Probe(ctx context.Context, adapter peripheral.Adapter) (active bool, data json.RawMessage, err error)
}

type activityState struct {
	active bool
	hash   string
}

// activitySummary returns the last-known activity state for every
// peripheral with a registered probe, carried in PERIPH_ANNOUNCE's
// optional Activity field.
func (s *Server) activitySummary() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lastActivity) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(s.lastActivity))
	for name, st := range s.lastActivity {
		out[name] = map[string]interface{}{"active": st.active}
	}
	return out
}

// pollActivity polls every peripheral whose type has a registered
// ActivityProbe at ACTIVITY_POLL_INTERVAL; a change from the
// previously observed state is pushed to every known client as an
// out-of-band "activity" PERIPH_STATE_PUSH (spec §4.8). Whether a
// client may opt out is an explicit open question in spec §9, resolved
// here (and recorded in DESIGN.md) as: not offered — a client simply
// ignores the push if it doesn't want it.
func (s *Server) pollActivity(ctx context.Context) {
	for name, adapter := range s.snapshotAdapters() {
		probe, ok := s.activityProbes[normalizeMethod(adapter.Type())]
		if !ok {
			continue
		}
		active, data, err := s.probe(ctx, probe, adapter)
		if err != nil {
			s.log.Debug("activity probe failed", logger.Peripheral(name), logger.Error(err))
			continue
		}
		hash := envelope.Hash(name, boolString(active), string(data))

		s.mu.Lock()
		prev, known := s.lastActivity[name]
		changed := !known || prev.hash != hash
		s.lastActivity[name] = activityState{active: active, hash: hash}
		s.mu.Unlock()

		if !changed {
			continue
		}
		s.broadcastActivity(ctx, name, active, data)
	}
}

func (s *Server) probe(ctx context.Context, probe ActivityProbe, adapter peripheral.Adapter) (active bool, data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic(r)
		}
	}()
	return probe.Probe(ctx, adapter)
}

func errPanic(r interface{}) error {
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (e *panicError) Error() string { return "activity probe panicked" }

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Server) snapshotAdapters() map[string]peripheral.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]peripheral.Adapter, len(s.adapters))
	for k, v := range s.adapters {
		out[k] = v
	}
	return out
}

func (s *Server) broadcastActivity(ctx context.Context, peripheralName string, active bool, data json.RawMessage) {
	results, _ := json.Marshal(map[string]interface{}{"active": active, "data": data})
	push := wire.NewStatePush(wire.StatePushData{
		Peripheral: peripheralName,
		Event:      "activity",
		Results:    results,
		HostID:     s.selfID,
	})
	for _, client := range s.knownClients() {
		if err := s.link.SendTo(ctx, client, push); err != nil {
			s.log.Warn("failed to push activity summary", logger.String("to", client), logger.Error(err))
		}
	}
}
