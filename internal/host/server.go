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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/scheduler"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

// ActivityHook is the telemetry hook spec §4.8 calls for: it is
// invoked on every dispatched call, success or failure, so an
// operator-facing layer (out of scope) can chart call volume and error
// rates without reaching into the server's internals.
type ActivityHook func(peripheralName, method string, err error, duration time.Duration)

// Server is the host-side peripheral server, C8 in the design.
type Server struct {
	selfID     string
	hostName   string
	link       *transport.Link
	source     AdapterSource
	exclusions []string

	announceInterval       time.Duration
	snapshotTTL            time.Duration
	activityPeriod         time.Duration
	subscribePoll          time.Duration
	defaultSubscribePeriod time.Duration
	chunkLimit             int
	maxChunkLimit          int
	extraHeavyMethods      []string
	extraActionMethods     []string

	announce  *scheduler.Periodic
	activity  *scheduler.Periodic
	subscribe *scheduler.Periodic

	mu          sync.RWMutex
	adapters    map[string]peripheral.Adapter
	descriptors []wire.PeripheralDescriptor
	stateHash   string

	snapshots      map[string]*snapshotEntry
	subs           map[string]*subscriptionEntry
	clients        map[string]time.Time
	activityProbes map[string]ActivityProbe
	lastActivity   map[string]activityState

	hook     ActivityHook
	log      logger.Logger
	dispatch *transport.Dispatch
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithAnnounceInterval overrides DefaultAnnounceInterval.
func WithAnnounceInterval(d time.Duration) Option {
	return func(s *Server) { s.announceInterval = d }
}

// WithSnapshotTTL overrides DefaultSnapshotTTL.
func WithSnapshotTTL(d time.Duration) Option {
	return func(s *Server) { s.snapshotTTL = d }
}

// WithActivityPollPeriod overrides DefaultActivityPollPeriod.
func WithActivityPollPeriod(d time.Duration) Option {
	return func(s *Server) { s.activityPeriod = d }
}

// WithExclusions replaces the default peripheral-type exclusion set.
func WithExclusions(types []string) Option {
	return func(s *Server) { s.exclusions = types }
}

// WithActivityProbe registers a probe for a peripheral type
// (normalized the same way registry type matching works), spec §4.8
// "Activity summaries."
func WithActivityProbe(peripheralType string, probe ActivityProbe) Option {
	return func(s *Server) { s.activityProbes[normalizeMethod(peripheralType)] = probe }
}

// WithActivityHook installs the telemetry hook spec §4.8 calls for.
func WithActivityHook(hook ActivityHook) Option {
	return func(s *Server) { s.hook = hook }
}

// WithDefaultSubscribeInterval overrides DefaultSubscribeInterval, the
// poll interval a PERIPH_SUBSCRIBE falls back to when the request
// doesn't carry its own intervalMs.
func WithDefaultSubscribeInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.defaultSubscribePeriod = d
		}
	}
}

// WithChunkLimit overrides DefaultChunkLimit/MaxChunkLimit, the heavy
// response page-size default and ceiling (spec §4.8 chunking).
func WithChunkLimit(def, max int) Option {
	return func(s *Server) {
		if def > 0 {
			s.chunkLimit = def
		}
		if max > 0 {
			s.maxChunkLimit = max
		}
	}
}

// WithMethodPolicy layers config.MethodPolicy.ExtraActions/ExtraHeavy
// on top of the package's built-in action/heavy-method classification
// (spec §4.7's split, mirrored host-side per internal/host/types.go).
func WithMethodPolicy(extraActions, extraHeavy []string) Option {
	return func(s *Server) {
		s.extraActionMethods = extraActions
		s.extraHeavyMethods = extraHeavy
	}
}

// NewServer builds a host server identifying itself as selfID/hostName,
// serving whatever source.Scan() enumerates, over link.
func NewServer(selfID, hostName string, link *transport.Link, source AdapterSource, opts ...Option) *Server {
	s := &Server{
		selfID:                 selfID,
		hostName:               hostName,
		link:                   link,
		source:                 source,
		exclusions:             append([]string(nil), defaultExclusionSet...),
		announceInterval:       DefaultAnnounceInterval,
		snapshotTTL:            DefaultSnapshotTTL,
		activityPeriod:         DefaultActivityPollPeriod,
		subscribePoll:          DefaultSubscribePoll,
		defaultSubscribePeriod: DefaultSubscribeInterval,
		chunkLimit:             DefaultChunkLimit,
		maxChunkLimit:          MaxChunkLimit,
		adapters:               make(map[string]peripheral.Adapter),
		snapshots:              make(map[string]*snapshotEntry),
		subs:                   make(map[string]*subscriptionEntry),
		clients:                make(map[string]time.Time),
		activityProbes:         make(map[string]ActivityProbe),
		lastActivity:           make(map[string]activityState),
		log:                    logger.ForComponent("host", selfID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.announce = scheduler.New(s.announceInterval)
	s.activity = scheduler.New(s.activityPeriod)
	s.subscribe = scheduler.New(s.subscribePoll)
	s.dispatch = s.buildDispatch()
	return s
}

// buildDispatch registers each PERIPH_* message type against its
// handler, spec §4.2's "Dispatch maps message.type -> handler" at the
// application layer, since C8's handlers need the full Server rather
// than just the raw channel.
func (s *Server) buildDispatch() *transport.Dispatch {
	d := transport.NewDispatch()
	d.Handle(wire.PeriphDiscover, func(ctx context.Context, from string, msg wire.Message) {
		s.touchClient(from)
		s.handleDiscover(ctx, from, msg)
	})
	d.Handle(wire.PeriphCall, func(ctx context.Context, from string, msg wire.Message) {
		s.touchClient(from)
		s.handleCall(ctx, from, msg)
	})
	d.Handle(wire.PeriphSubscribe, func(_ context.Context, from string, msg wire.Message) {
		s.touchClient(from)
		s.handleSubscribe(from, msg)
	})
	d.Handle(wire.PeriphUnsubscribe, func(_ context.Context, from string, msg wire.Message) {
		s.touchClient(from)
		s.handleUnsubscribe(msg)
	})
	d.Fallback(func(_ context.Context, from string, msg wire.Message) {
		s.touchClient(from)
		s.log.Debug("host ignoring message type not in its dispatch table", logger.String("type", string(msg.Type)))
	})
	return d
}

// Run performs the initial scan and starts every background task
// (heartbeat, activity poller, subscription poller, receive loop),
// blocking until ctx is cancelled or the link's Receive loop errors.
func (s *Server) Run(ctx context.Context) error {
	s.Rescan()

	s.announce.Start(ctx, func(ctx context.Context) { s.sendAnnounce(ctx) })
	s.activity.Start(ctx, func(ctx context.Context) { s.pollActivity(ctx) })
	s.subscribe.Start(ctx, func(ctx context.Context) { s.pollSubscriptions(ctx) })
	defer s.announce.Stop()
	defer s.activity.Stop()
	defer s.subscribe.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.receiveLoop(ctx) })
	return g.Wait()
}

// receiveLoop drains the link through s.dispatch until ctx is
// cancelled or the link errors.
func (s *Server) receiveLoop(ctx context.Context) error {
	return s.dispatch.Run(ctx, s.link)
}

func (s *Server) touchClient(id string) {
	if id == "" || id == s.selfID {
		return
	}
	s.mu.Lock()
	s.clients[id] = time.Now()
	s.mu.Unlock()
}

func (s *Server) knownClients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	return out
}

// Rescan re-enumerates local peripherals (spec §4.8 "Rescan"). If the
// resulting (count, stateHash) pair changed, it immediately emits a
// fresh heartbeat instead of waiting for the next scheduled tick.
func (s *Server) Rescan() {
	adapters, descriptors := s.scan()
	newHash := computeStateHash(descriptors)

	s.mu.Lock()
	changed := newHash != s.stateHash || len(descriptors) != len(s.descriptors)
	s.adapters = adapters
	s.descriptors = descriptors
	s.stateHash = newHash
	s.mu.Unlock()
	metrics.HostPeripheralsExposed.Set(float64(len(descriptors)))

	if changed {
		s.sendAnnounce(context.Background())
	}
}

func (s *Server) snapshot() (hash string, descriptors []wire.PeripheralDescriptor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateHash, append([]wire.PeripheralDescriptor(nil), s.descriptors...)
}

func (s *Server) sendAnnounce(ctx context.Context) {
	hash, descriptors := s.snapshot()
	msg := wire.NewAnnounce(wire.AnnounceData{
		HostID:          s.selfID,
		HostName:        s.hostName,
		StateHash:       hash,
		PeripheralCount: len(descriptors),
		Activity:        s.activitySummary(),
	})
	if err := s.link.Broadcast(ctx, msg); err != nil {
		s.log.Warn("failed to broadcast announce", logger.Error(err))
	}
}

func (s *Server) handleDiscover(ctx context.Context, from string, msg wire.Message) {
	_, descriptors := s.snapshot()
	resp := wire.NewList(msg.RequestID, wire.ListData{
		HostID:      s.selfID,
		HostName:    s.hostName,
		Peripherals: descriptors,
	})
	if err := s.link.SendTo(ctx, from, resp); err != nil {
		s.log.Warn("failed to send discover response", logger.String("to", from), logger.Error(err))
	}
}

func (s *Server) adapterFor(name string) (peripheral.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[name]
	return a, ok
}
