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

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/scheduler"
	"github.com/redmesh-project/redmesh/internal/transport"
	"github.com/redmesh-project/redmesh/internal/wire"
)

// DefaultTimeout is DEFAULT_RPC_TIMEOUT from spec §6.
const DefaultTimeout = 3 * time.Second

// DefaultSweepInterval governs how often the timeout sweep runs.
const DefaultSweepInterval = 1 * time.Second

// waiterEntry is one caller's private view of a pendingRequest: its
// own delivery channels, so that caller's ctx governs only its own
// wait and never the shared request other coalesced callers are still
// waiting on.
type waiterEntry struct {
	resultCh chan wire.Message
	errCh    chan error
}

// pendingRequest is one in-flight requestId awaiting a correlated
// response (spec §3 "PendingRequest"). Multiple callers that coalesce
// onto the same key each register their own waiterEntry here; resolve
// broadcasts the eventual response or timeout to every one of them.
type pendingRequest struct {
	coalesceKey string
	deadline    time.Time
	waiters     []*waiterEntry
	resolved    bool
}

// Engine is the call-dispatch engine, C6 in the design. Concurrent
// identical calls share one network round trip: golang.org/x/sync/singleflight
// guards the actual send so it happens exactly once per coalesceKey,
// but response delivery is fanned out through per-caller waiterEntry
// channels rather than singleflight's own shared return value - a
// caller's ctx expiring only ever resolves that caller's own wait
// (spec §4.6 "a caller's deadline elapses cooperatively... does not
// cancel the shared PendingRequest").
type Engine struct {
	selfID string
	link   *transport.Link

	defaultTimeout time.Duration

	mu            sync.Mutex
	byReqID       map[string]*pendingRequest
	coalesceIndex map[string]string // coalesceKey -> requestID
	lastResult    map[string]json.RawMessage

	sf      singleflight.Group
	sweep   *scheduler.Periodic
	closed  bool
	log     logger.Logger
	onSweep []func()
	sweepMu sync.Mutex
}

// New builds an Engine identifying itself as selfID, sending/
// receiving over link.
func New(selfID string, link *transport.Link) *Engine {
	return &Engine{
		selfID:         selfID,
		link:           link,
		defaultTimeout: DefaultTimeout,
		byReqID:        make(map[string]*pendingRequest),
		coalesceIndex:  make(map[string]string),
		lastResult:     make(map[string]json.RawMessage),
		sweep:          scheduler.New(DefaultSweepInterval),
		log:            logger.ForComponent("rpc", selfID),
	}
}

// WithDefaultTimeout overrides DefaultTimeout.
func (e *Engine) WithDefaultTimeout(d time.Duration) *Engine {
	e.defaultTimeout = d
	return e
}

// WithSweepInterval overrides DefaultSweepInterval. Must be called
// before Start.
func (e *Engine) WithSweepInterval(d time.Duration) *Engine {
	e.sweep = scheduler.New(d)
	return e
}

// Start launches the background timeout sweep (spec §4.6 "Timeout
// sweep"). OnSweep hooks registered via RegisterSweepHook also run on
// every tick — this is how the discovery component's PendingDiscover
// table shares the "same timeout sweep" spec §4.6 describes without
// a direct dependency between the two packages.
func (e *Engine) Start(ctx context.Context) {
	e.sweep.Start(ctx, func(ctx context.Context) {
		e.sweepTimeouts()
		e.sweepMu.Lock()
		hooks := append([]func(){}, e.onSweep...)
		e.sweepMu.Unlock()
		for _, hook := range hooks {
			hook()
		}
	})
}

// RegisterSweepHook adds fn to the set called on every sweep tick.
func (e *Engine) RegisterSweepHook(fn func()) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	e.onSweep = append(e.onSweep, fn)
}

// Stop halts the background sweep.
func (e *Engine) Stop() {
	e.sweep.Stop()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Call is the single public entry point the proxy cache and
// discovery use to invoke a remote method (spec §4.6). It transparently
// follows chunked pagination to completion and returns the fully
// concatenated result, or honors the unchanged short-circuit when
// options.ResultHash matches the host's current hash.
func (e *Engine) Call(ctx context.Context, hostID, name, method string, args json.RawMessage, options *wire.CallOptions, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	key := CoalesceKey(hostID, name, method, args, options)
	cacheKey := resultCacheKey(hostID, name, method, args)

	start := time.Now()
	v, shared, err := e.doCall(ctx, hostID, name, method, args, options, key, cacheKey, timeout)
	metrics.RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.RPCCallsTotal.WithLabelValues(method, outcomeLabel(err)).Inc()
	if shared {
		metrics.RPCCoalescedTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrSnapshotRequired):
		return "snapshot_required"
	case errors.Is(err, ErrSnapshotExpired):
		return "snapshot_expired"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "remote_error"
	}
}

func (e *Engine) doCall(ctx context.Context, hostID, name, method string, args json.RawMessage, options *wire.CallOptions, key, cacheKey string, timeout time.Duration) (json.RawMessage, bool, error) {
	msg := wire.NewCall(name, method, args, options)
	resp, shared, err := e.sendAndWait(ctx, hostID, msg, key, timeout)
	if err != nil {
		return nil, shared, err
	}

	results, meta, err := e.decodeResponse(resp)
	if err != nil {
		return nil, shared, err
	}

	if meta != nil && meta.Unchanged {
		e.mu.Lock()
		cached, ok := e.lastResult[cacheKey]
		e.mu.Unlock()
		if !ok {
			return nil, shared, fmt.Errorf("rpc: host reported unchanged but no cached result is held for key %s", cacheKey)
		}
		return cached, shared, nil
	}

	final := results
	if meta != nil && meta.Chunked && !meta.Done {
		final, err = e.followPages(ctx, hostID, name, method, results, meta, timeout)
		if err != nil {
			return nil, shared, err
		}
	}

	e.mu.Lock()
	e.lastResult[cacheKey] = final
	e.mu.Unlock()
	return final, shared, nil
}

// followPages issues the follow-up page requests spec §4.6 describes
// until the host reports done=true, concatenating each page's result
// array.
func (e *Engine) followPages(ctx context.Context, hostID, name, method string, first json.RawMessage, meta *wire.Meta, timeout time.Duration) (json.RawMessage, error) {
	pages := []json.RawMessage{first}
	offset := meta.Offset + meta.Limit
	queryID := meta.QueryID
	resultHash := meta.ResultHash

	for {
		opts := &wire.CallOptions{Offset: offset, Limit: meta.Limit, ResultHash: resultHash, QueryID: queryID, Page: true}
		pageKey := CoalesceKey(hostID, name, method, nil, opts)
		msg := wire.NewCall(name, method, nil, opts)
		resp, _, err := e.sendAndWait(ctx, hostID, msg, pageKey, timeout)
		if err != nil {
			return nil, err
		}
		results, pmeta, err := e.decodeResponse(resp)
		if err != nil {
			return nil, err
		}
		if pmeta == nil {
			return nil, fmt.Errorf("rpc: expected chunked meta on follow-up page")
		}
		pages = append(pages, results)
		metrics.RPCChunkedPages.Inc()
		if pmeta.Done {
			break
		}
		offset = pmeta.Offset + pmeta.Limit
		queryID = pmeta.QueryID
		resultHash = pmeta.ResultHash
	}

	return concatArrays(pages)
}

func concatArrays(pages []json.RawMessage) (json.RawMessage, error) {
	var all []json.RawMessage
	for _, page := range pages {
		var items []json.RawMessage
		if len(page) > 0 {
			if err := json.Unmarshal(page, &items); err != nil {
				return nil, fmt.Errorf("rpc: page result is not a JSON array: %w", err)
			}
		}
		all = append(all, items...)
	}
	return json.Marshal(all)
}

func (e *Engine) decodeResponse(msg wire.Message) (json.RawMessage, *wire.Meta, error) {
	switch msg.Type {
	case wire.PeriphError:
		var data wire.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, nil, fmt.Errorf("rpc: malformed error data: %w", err)
		}
		return nil, nil, remoteErrorCode(data.Error)
	case wire.PeriphResult:
		var data wire.ResultData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, nil, fmt.Errorf("rpc: malformed result data: %w", err)
		}
		return data.Results, data.Meta, nil
	case wire.PeriphList:
		var data wire.ListData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, nil, fmt.Errorf("rpc: malformed list data: %w", err)
		}
		b, err := json.Marshal(data.Peripherals)
		return b, nil, err
	default:
		return nil, nil, fmt.Errorf("rpc: unexpected response type %s", msg.Type)
	}
}

// sendAndWait sends msg to hostID - at most once per coalesceKey, via
// singleflight - and blocks until this specific caller's waiterEntry
// is resolved, its own deadline sweep fires, or its own ctx is
// cancelled. A concurrent identical call already in flight joins the
// existing pendingRequest instead of sending again; its own ctx
// cancelling only abandons its own wait (see abandon), never the
// shared request other callers are still waiting on.
func (e *Engine) sendAndWait(ctx context.Context, hostID string, msg wire.Message, coalesceKey string, timeout time.Duration) (wire.Message, bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return wire.Message{}, false, ErrClosed
	}
	w := &waiterEntry{resultCh: make(chan wire.Message, 1), errCh: make(chan error, 1)}
	requestID, leader := e.joinOrCreate(coalesceKey, msg.RequestID, timeout, w)
	e.mu.Unlock()
	if !leader {
		e.log.Debug("call coalesced onto in-flight request",
			logger.HostID(hostID), logger.CoalesceKey(coalesceKey), logger.RequestID(requestID))
	}

	if leader {
		if _, err, _ := e.sf.Do(coalesceKey, func() (interface{}, error) {
			return nil, e.link.SendTo(ctx, hostID, msg)
		}); err != nil {
			e.resolve(requestID, wire.Message{}, err)
			return wire.Message{}, false, err
		}
	}

	select {
	case resp := <-w.resultCh:
		return resp, !leader, nil
	case err := <-w.errCh:
		return wire.Message{}, !leader, err
	case <-ctx.Done():
		e.abandon(requestID, w)
		e.log.Debug("caller abandoned request, shared pendingRequest left intact for other waiters",
			logger.HostID(hostID), logger.RequestID(requestID))
		return wire.Message{}, !leader, ctx.Err()
	}
}

// joinOrCreate attaches w to the pendingRequest already coalescing
// key, extending its deadline to cover w's own timeout if that runs
// longer, or creates a new pendingRequest identified by requestID if
// none is in flight (or the in-flight one already resolved). Must be
// called with e.mu held; returns the requestID w is now waiting on
// and whether this caller is the leader responsible for sending.
func (e *Engine) joinOrCreate(key, requestID string, timeout time.Duration, w *waiterEntry) (string, bool) {
	if existingID, ok := e.coalesceIndex[key]; ok {
		if pr, ok := e.byReqID[existingID]; ok && !pr.resolved {
			pr.waiters = append(pr.waiters, w)
			if d := time.Now().Add(timeout); d.After(pr.deadline) {
				pr.deadline = d
			}
			return existingID, false
		}
	}

	pr := &pendingRequest{
		coalesceKey: key,
		deadline:    time.Now().Add(timeout),
		waiters:     []*waiterEntry{w},
	}
	e.byReqID[requestID] = pr
	e.coalesceIndex[key] = requestID
	metrics.RPCPendingRequests.Set(float64(len(e.byReqID)))
	return requestID, true
}

// abandon removes w from requestID's waiter list without resolving or
// tearing down the shared pendingRequest - any other callers still
// coalesced onto it keep waiting for the real response or the
// deadline sweep, exactly as if w had never joined.
func (e *Engine) abandon(requestID string, w *waiterEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pr, ok := e.byReqID[requestID]
	if !ok {
		return
	}
	for i, waiter := range pr.waiters {
		if waiter == w {
			pr.waiters = append(pr.waiters[:i], pr.waiters[i+1:]...)
			return
		}
	}
}

// HandleResponse resolves the pending request matching msg's
// RequestID, per spec §4.6 "Response path". A response with no
// matching pending request (already resolved or timed out) is
// silently ignored, per invariant (i).
func (e *Engine) HandleResponse(msg wire.Message) {
	if msg.RequestID == "" {
		return
	}
	e.resolve(msg.RequestID, msg, nil)
}

func (e *Engine) resolve(requestID string, msg wire.Message, err error) {
	e.mu.Lock()
	pr, ok := e.byReqID[requestID]
	if !ok || pr.resolved {
		e.mu.Unlock()
		return
	}
	pr.resolved = true
	waiters := pr.waiters
	delete(e.byReqID, requestID)
	if e.coalesceIndex[pr.coalesceKey] == requestID {
		delete(e.coalesceIndex, pr.coalesceKey)
	}
	metrics.RPCPendingRequests.Set(float64(len(e.byReqID)))
	e.mu.Unlock()

	for _, w := range waiters {
		e.deliver(w, msg, err)
	}
}

// deliver invokes one waiter's completion in a failure-isolating
// wrapper, matching spec §4.6's "one callback must not interrupt the
// others" - every coalesced caller gets its own delivery, so a panic
// or a full channel on one cannot block or lose the response for
// another.
func (e *Engine) deliver(w *waiterEntry, msg wire.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("panic delivering rpc response", logger.Any("panic", r))
		}
	}()
	if err != nil {
		w.errCh <- err
		return
	}
	w.resultCh <- msg
}

// sweepTimeouts removes every pending request whose deadline has
// passed and resolves it with ErrTimeout (spec §4.6 "Timeout sweep").
func (e *Engine) sweepTimeouts() {
	now := time.Now()
	e.mu.Lock()
	var expired []string
	for id, pr := range e.byReqID {
		if now.After(pr.deadline) {
			expired = append(expired, id)
		}
	}
	e.mu.Unlock()

	for _, id := range expired {
		e.resolve(id, wire.Message{}, ErrTimeout)
	}
}

// PendingCount reports how many requests are currently in flight, for
// tests and health checks.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byReqID)
}
