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

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/registry"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
)

// DefaultDiscoverTimeout bounds how long a PendingDiscover slot is
// held before the timeout sweep frees it (spec §4.6 "Timeout sweep").
const DefaultDiscoverTimeout = 5 * time.Second

// HostRecord is this node's view of one remote host, spec §3.
type HostRecord struct {
	HostID          string
	HostName        string
	StateHash       string
	PeripheralCount int
	Activity        map[string]interface{}
	LastSeen        time.Time
}

type pendingDiscover struct {
	requestID string
	deadline  time.Time
}

// Discovery tracks known remote hosts and drives the
// announce-triggers-discover flow of spec §4.4. It is the client-side
// half of C4; the host-side half (emitting PERIPH_ANNOUNCE on a
// schedule) lives in internal/host, which runs its own
// scheduler.Periodic (the type HeartbeatScheduler aliases).
type Discovery struct {
	selfID string
	link   *transport.Link
	reg    *registry.Registry

	discoverTimeout time.Duration

	mu         sync.Mutex
	hosts      map[string]*HostRecord
	pending    map[string]pendingDiscover // hostID -> pending
	pendingRev map[string]string          // requestID -> hostID

	log logger.Logger
}

// New builds a Discovery for selfID, sending/receiving protocol
// messages over link and updating reg on a fresh PERIPH_LIST.
func New(selfID string, link *transport.Link, reg *registry.Registry) *Discovery {
	return &Discovery{
		selfID:          selfID,
		link:            link,
		reg:             reg,
		discoverTimeout: DefaultDiscoverTimeout,
		hosts:           make(map[string]*HostRecord),
		pending:         make(map[string]pendingDiscover),
		pendingRev:      make(map[string]string),
		log:             logger.ForComponent("discovery", selfID),
	}
}

// WithDiscoverTimeout overrides the default pending-discover deadline.
func (d *Discovery) WithDiscoverTimeout(timeout time.Duration) *Discovery {
	d.discoverTimeout = timeout
	return d
}

// Host returns the current record for hostID, if known.
func (d *Discovery) Host(hostID string) (HostRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hr, ok := d.hosts[hostID]
	if !ok {
		return HostRecord{}, false
	}
	return *hr, true
}

// Hosts returns a snapshot of every known host record.
func (d *Discovery) Hosts() []HostRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]HostRecord, 0, len(d.hosts))
	for _, hr := range d.hosts {
		out = append(out, *hr)
	}
	return out
}

// HandleAnnounce processes an inbound PERIPH_ANNOUNCE: it updates
// HostRecord and, per spec §4.4, issues a PERIPH_DISCOVER iff the
// client has no peripherals owned by that host or the state hash
// changed. A legacy full-inventory announce is handled like a
// PERIPH_LIST instead (backward compatibility).
func (d *Discovery) HandleAnnounce(ctx context.Context, data wire.AnnounceData) {
	if data.HostID == d.selfID {
		return
	}

	if data.IsLegacy() {
		d.reg.ReplaceHost(data.HostID, data.HostName, data.Peripherals)
		d.mu.Lock()
		d.hosts[data.HostID] = &HostRecord{
			HostID:          data.HostID,
			HostName:        data.HostName,
			PeripheralCount: len(data.Peripherals),
			LastSeen:        time.Now(),
		}
		count := len(d.hosts)
		d.mu.Unlock()
		metrics.AnnouncesReceived.WithLabelValues("false").Inc()
		metrics.KnownHosts.Set(float64(count))
		return
	}

	d.mu.Lock()
	hr, known := d.hosts[data.HostID]
	stateChanged := !known || hr.StateHash != data.StateHash
	d.hosts[data.HostID] = &HostRecord{
		HostID:          data.HostID,
		HostName:        data.HostName,
		StateHash:       data.StateHash,
		PeripheralCount: data.PeripheralCount,
		Activity:        data.Activity,
		LastSeen:        time.Now(),
	}
	count := len(d.hosts)
	d.mu.Unlock()

	triggered := stateChanged || !d.reg.HasHost(data.HostID)
	metrics.AnnouncesReceived.WithLabelValues(boolLabel(triggered)).Inc()
	metrics.KnownHosts.Set(float64(count))

	// spec §4.4: discover iff (a) no peripherals owned by this host
	// yet, or (b) the state hash changed.
	if triggered {
		d.requestDiscover(ctx, data.HostID)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// requestDiscover broadcasts a PERIPH_DISCOVER for hostID unless one
// is already pending (spec §4.4 "Each outstanding per-host discover
// is tracked by requestId so duplicates are suppressed").
func (d *Discovery) requestDiscover(ctx context.Context, hostID string) {
	d.mu.Lock()
	if _, inflight := d.pending[hostID]; inflight {
		d.mu.Unlock()
		return
	}
	msg := wire.NewDiscover()
	d.pending[hostID] = pendingDiscover{
		requestID: msg.RequestID,
		deadline:  time.Now().Add(d.discoverTimeout),
	}
	d.pendingRev[msg.RequestID] = hostID
	d.mu.Unlock()
	metrics.DiscoverRequestsTotal.Inc()

	if err := d.link.Broadcast(ctx, msg); err != nil {
		d.log.Warn("failed to broadcast discover", logger.HostID(hostID), logger.Error(err))
		d.freePending(hostID)
	}
}

// RequestDiscover is the public entry point for an on-demand discover
// initiated by application code, not triggered by an announce.
func (d *Discovery) RequestDiscover(ctx context.Context, hostID string) {
	d.requestDiscover(ctx, hostID)
}

// HandleList processes an inbound PERIPH_LIST: it atomically replaces
// the host's ownership set in the registry and frees the matching
// pending-discover slot.
func (d *Discovery) HandleList(requestID string, data wire.ListData) {
	d.reg.ReplaceHost(data.HostID, data.HostName, data.Peripherals)
	d.freePending(data.HostID)

	d.mu.Lock()
	if hr, ok := d.hosts[data.HostID]; ok {
		hr.PeripheralCount = len(data.Peripherals)
	}
	d.mu.Unlock()
}

func (d *Discovery) freePending(hostID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[hostID]; ok {
		delete(d.pendingRev, p.requestID)
	}
	delete(d.pending, hostID)
}

// SweepTimeouts removes any pending-discover slot whose deadline has
// passed, per spec §4.6 "Timeout sweep". It has no ticker of its own:
// client.New registers it on the RPC engine's sweep via
// RegisterSweepHook. Slots are keyed by hostId rather than coalesceKey.
func (d *Discovery) SweepTimeouts() {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for hostID, p := range d.pending {
		if now.After(p.deadline) {
			delete(d.pending, hostID)
			delete(d.pendingRev, p.requestID)
			metrics.DiscoverTimeoutsTotal.Inc()
		}
	}
}

// PendingCount reports how many discover requests are currently
// in flight, for tests and health checks.
func (d *Discovery) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
