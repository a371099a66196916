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
	"time"

	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/rpc"
)

// callKey identifies one (method, args) cache slot within a Proxy.
func callKey(method string, args json.RawMessage) string {
	return method + "\x00" + string(args)
}

// Proxy is spec §4.7's client-side handle to one remote peripheral:
// cached reads, opportunistic async refresh, and failure-driven
// disconnect/cooldown, generalized from the teacher's
// core/session/manager.go lifecycle-state-machine shape (session
// expiry -> proxy connectivity).
type Proxy struct {
	engine *rpc.Engine
	hostID string
	name   string

	cacheTTL          time.Duration
	cacheExpire       time.Duration
	asyncRetry        time.Duration
	maxFailures       int
	cooldown          time.Duration
	defaultRPCTimeout time.Duration
	extraActions      []string
	extraHeavy        []string

	mu                  sync.Mutex
	entries             map[string]*cacheEntry
	consecutiveFailures int
	disconnected        bool
	disconnectedAt      time.Time
	lastFailureCategory string
	refreshing          map[string]time.Time

	log logger.Logger
}

// ProxyOption configures a Proxy at construction time, sourced from
// config.TunablesConfig/config.MethodPolicy (spec §6's per-deployment
// overrides layered on the package's built-in defaults, never
// replacing them).
type ProxyOption func(*Proxy)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.cacheTTL = d
		}
	}
}

// WithCacheExpire overrides DefaultCacheExpire.
func WithCacheExpire(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.cacheExpire = d
		}
	}
}

// WithAsyncRetry overrides DefaultAsyncRetry.
func WithAsyncRetry(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.asyncRetry = d
		}
	}
}

// WithMaxFailures overrides DefaultMaxFailures.
func WithMaxFailures(n int) ProxyOption {
	return func(p *Proxy) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithReconnectCooldown overrides DefaultReconnectCooldown.
func WithReconnectCooldown(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithDefaultRPCTimeout overrides DefaultRPCTimeout, the timeout
// non-heavy, non-action methods fall back to.
func WithDefaultRPCTimeout(d time.Duration) ProxyOption {
	return func(p *Proxy) {
		if d > 0 {
			p.defaultRPCTimeout = d
		}
	}
}

// WithExtraActions layers config.MethodPolicy.ExtraActions on top of
// the package's built-in action-method set.
func WithExtraActions(methods []string) ProxyOption {
	return func(p *Proxy) { p.extraActions = methods }
}

// WithExtraHeavy layers config.MethodPolicy.ExtraHeavy on top of the
// package's built-in heavy-method set.
func WithExtraHeavy(methods []string) ProxyOption {
	return func(p *Proxy) { p.extraHeavy = methods }
}

// NewProxy builds a Proxy for the remote peripheral (hostID, name),
// issuing calls over engine.
func NewProxy(engine *rpc.Engine, hostID, name string, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		engine:            engine,
		hostID:            hostID,
		name:              name,
		cacheTTL:          DefaultCacheTTL,
		cacheExpire:       DefaultCacheExpire,
		asyncRetry:        DefaultAsyncRetry,
		maxFailures:       DefaultMaxFailures,
		cooldown:          DefaultReconnectCooldown,
		defaultRPCTimeout: DefaultRPCTimeout,
		entries:           make(map[string]*cacheEntry),
		refreshing:        make(map[string]time.Time),
		log: logger.GetDefaultLogger().WithFields(
			logger.Component("proxycache"),
			logger.HostID(hostID),
			logger.Peripheral(name),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// isAction reports whether method is an action for this Proxy: the
// package's built-in set plus any config.MethodPolicy.ExtraActions
// this Proxy was configured with.
func (p *Proxy) isAction(method string) bool {
	n := normalize(method)
	return actionMethods[n] || matchesAny(n, p.extraActions)
}

// isHeavy reports whether method gets the heavy-method timeout tier
// for this Proxy, built-in set plus any ExtraHeavy override.
func (p *Proxy) isHeavy(method string) bool {
	n := normalize(method)
	return heavyListMethods[n] || matchesAny(n, p.extraHeavy)
}

// timeoutFor is the configurable counterpart of the package-level
// TimeoutFor: heavy methods still get 5s and actions still get 3s
// (spec §4.7's fixed tiers), but the default tier honors this Proxy's
// own DefaultRPCTimeout override.
func (p *Proxy) timeoutFor(method string) time.Duration {
	switch {
	case p.isHeavy(method):
		return 5 * time.Second
	case p.isAction(method):
		return 3 * time.Second
	default:
		return p.defaultRPCTimeout
	}
}

// Call dispatches method against the remote peripheral. Action methods
// (spec §4.7) always issue a blocking call and are never cached. Read
// methods consult the tiered cache first: fresh hits return
// immediately, stale hits return the cached value while kicking off a
// debounced async refresh, and absent/expired entries block on a fresh
// network call.
func (p *Proxy) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	if p.isAction(method) {
		return p.blockingCall(ctx, method, args)
	}

	if err := p.checkConnected(); err != nil {
		return nil, err
	}

	key := callKey(method, args)
	now := time.Now()

	p.mu.Lock()
	entry := p.entries[key]
	tier := entry.tier(now, p.cacheTTL, p.cacheExpire)
	p.mu.Unlock()

	switch tier {
	case TierFresh:
		metrics.CacheHitsTotal.WithLabelValues("fresh").Inc()
		return entry.results, nil
	case TierStale:
		metrics.CacheHitsTotal.WithLabelValues("stale").Inc()
		p.maybeAsyncRefresh(key, method, args, now)
		return entry.results, nil
	default:
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return p.blockingCall(ctx, method, args)
	}
}

// blockingCall issues a synchronous rpc.Engine.Call, updates the
// disconnect/failure state machine, and on success refreshes the cache
// entry for read methods.
func (p *Proxy) blockingCall(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	timeout := p.timeoutFor(method)
	results, err := p.engine.Call(ctx, p.hostID, p.name, method, args, nil, timeout)
	if err != nil {
		p.recordFailure(err)
		return nil, err
	}
	p.recordSuccess()

	if !p.isAction(method) {
		key := callKey(method, args)
		p.mu.Lock()
		p.entries[key] = &cacheEntry{results: results, timestamp: time.Now()}
		p.mu.Unlock()
	}
	return results, nil
}

// maybeAsyncRefresh fires a background refresh for a stale cache entry
// if one hasn't already been kicked off within asyncRetry (spec §4.7
// "debounced so repeated stale hits within ASYNC_RETRY don't pile up
// redundant refreshes").
func (p *Proxy) maybeAsyncRefresh(key, method string, args json.RawMessage, now time.Time) {
	p.mu.Lock()
	last, ok := p.refreshing[key]
	if ok && now.Sub(last) < p.asyncRetry {
		p.mu.Unlock()
		return
	}
	p.refreshing[key] = now
	p.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeoutFor(method))
		defer cancel()
		if _, err := p.blockingCall(ctx, method, args); err != nil {
			metrics.CacheAsyncRefreshTotal.WithLabelValues("error").Inc()
			p.log.Debug("async refresh failed", logger.Method(method), logger.Error(err))
			return
		}
		metrics.CacheAsyncRefreshTotal.WithLabelValues("success").Inc()
	}()
}

// checkConnected rejects calls while disconnected and the cooldown
// hasn't elapsed; once it has, a single attempt is allowed through to
// probe whether the peripheral has come back (spec §4.7 "after
// RECONNECT_COOLDOWN, the next call is allowed to attempt the network
// again rather than failing fast").
func (p *Proxy) checkConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.disconnected {
		return nil
	}
	if time.Since(p.disconnectedAt) < p.cooldown {
		return rpc.ErrClosed
	}
	return nil
}

func (p *Proxy) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures++
	p.lastFailureCategory = categorize(err)
	if p.consecutiveFailures >= p.maxFailures {
		if !p.disconnected {
			p.disconnected = true
			metrics.CacheDisconnectsTotal.Inc()
			p.log.Warn("proxy disconnected after consecutive failures",
				logger.Int("failures", p.consecutiveFailures))
		}
		// A failed post-cooldown probe restarts the cooldown clock -
		// otherwise disconnectedAt stays stale and every call after the
		// first cooldown window skips checkConnected's fail-fast check.
		p.disconnectedAt = time.Now()
	}
}

func (p *Proxy) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures = 0
	p.lastFailureCategory = ""
	if p.disconnected {
		p.log.Info("proxy reconnected")
	}
	p.disconnected = false
}

func categorize(err error) string {
	switch {
	case err == nil:
		return ""
	case err == rpc.ErrTimeout:
		return "timeout"
	case err == rpc.ErrSnapshotRequired || err == rpc.ErrSnapshotExpired:
		return "snapshot"
	case err == rpc.ErrClosed:
		return "closed"
	default:
		if _, ok := err.(*rpc.RemoteError); ok {
			return "remote"
		}
		return "unknown"
	}
}

// Reconnect explicitly bypasses RECONNECT_COOLDOWN (spec §4.7's
// client-initiated reconnect), clearing the disconnected flag so the
// next Call attempts the network unconditionally.
func (p *Proxy) Reconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = false
	p.consecutiveFailures = 0
	p.lastFailureCategory = ""
}

// Connected reports whether the proxy currently believes the remote
// peripheral is reachable.
func (p *Proxy) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disconnected
}

// LastFailureCategory reports the category of the most recent failure,
// or "" if the last call succeeded (spec §4.7 ProxyState.lastError).
func (p *Proxy) LastFailureCategory() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFailureCategory
}

// State returns the full snapshot spec §4.7's "query proxy state"
// scenario needs.
func (p *Proxy) State() DependencyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := StateOK
	if p.disconnected {
		status = StateError
	}
	return DependencyStatus{
		HostID:              p.hostID,
		Peripheral:          p.name,
		State:               status,
		ConsecutiveFailures: p.consecutiveFailures,
		LastFailureCategory: p.lastFailureCategory,
		Disconnected:        p.disconnected,
	}
}
