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
	"sort"
	"time"

	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/wire"
	"github.com/redmesh-project/redmesh/peripheral"
)

// snapshotEntry is the host-side cached reduced list spec §3
// "Snapshot" describes: it lets a multi-page read serve every
// follow-up page from the exact same reduced array the first page
// saw, even if the underlying peripheral's contents shift mid-read.
type snapshotEntry struct {
	items      []json.RawMessage
	resultHash string
	peripheral string
	method     string
	argsKey    string
	expiresAt  time.Time
}

func (s *Server) sweepSnapshotsLocked(now time.Time) {
	for id, entry := range s.snapshots {
		if now.After(entry.expiresAt) {
			delete(s.snapshots, id)
		}
	}
	metrics.HostSnapshotsActive.Set(float64(len(s.snapshots)))
}

// handleCall dispatches one PERIPH_CALL (spec §4.8): validates the
// peripheral and method exist, invokes the adapter inside a
// crash-isolated wrapper, and replies with PERIPH_RESULT or
// PERIPH_ERROR. Heavy list-returning methods are shaped, hashed, and
// chunked before being returned.
func (s *Server) handleCall(ctx context.Context, from string, msg wire.Message) {
	start := time.Now()
	var data wire.CallData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.replyError(ctx, from, msg.RequestID, ErrInvokeFailed)
		return
	}

	adapter, ok := s.adapterFor(data.Peripheral)
	if !ok {
		s.fireHook(data.Peripheral, data.Method, fmt.Errorf(ErrPeripheralNotFound), time.Since(start))
		s.replyError(ctx, from, msg.RequestID, ErrPeripheralNotFound)
		return
	}
	if !hasMethod(adapter, data.Method) {
		s.fireHook(data.Peripheral, data.Method, fmt.Errorf(ErrMethodNotFound), time.Since(start))
		s.replyError(ctx, from, msg.RequestID, ErrMethodNotFound)
		return
	}

	if s.isHeavyMethod(data.Method) && !s.isActionMethod(data.Method) {
		s.handleHeavyCall(ctx, from, msg.RequestID, adapter, data, start)
		return
	}

	results, err := s.invoke(ctx, adapter, data.Method, data.Args)
	s.fireHook(data.Peripheral, data.Method, err, time.Since(start))
	if err != nil {
		s.replyError(ctx, from, msg.RequestID, ErrInvokeFailed)
		return
	}
	s.reply(ctx, from, wire.NewResult(msg.RequestID, results, nil))
}

func hasMethod(a peripheral.Adapter, method string) bool {
	for _, m := range a.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// invoke runs adapter.Invoke inside a recover()-wrapped helper so a
// panicking adapter becomes an invoke_failed error instead of
// crashing the host process (spec §4.8 "Crash isolation", generalizing
// §7's "Host-side adapter exceptions... do not terminate the server").
func (s *Server) invoke(ctx context.Context, adapter peripheral.Adapter, method string, args json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("recovered from panicking adapter", logger.Peripheral(adapter.Name()), logger.Method(method), logger.Any("panic", r))
			err = fmt.Errorf("invoke panicked: %v", r)
		}
	}()
	return adapter.Invoke(ctx, method, args)
}

func (s *Server) handleHeavyCall(ctx context.Context, from, requestID string, adapter peripheral.Adapter, data wire.CallData, start time.Time) {
	opts := data.Options
	if opts != nil && opts.Page && opts.Offset > 0 {
		s.handleHeavyPage(ctx, from, requestID, adapter.Name(), data.Method, opts)
		return
	}

	raw, err := s.invoke(ctx, adapter, data.Method, data.Args)
	s.fireHook(data.Peripheral, data.Method, err, time.Since(start))
	if err != nil {
		s.replyError(ctx, from, requestID, ErrInvokeFailed)
		return
	}

	reduced, err := reduceHeavyRows(raw)
	if err != nil {
		s.replyError(ctx, from, requestID, ErrInvokeFailed)
		return
	}
	resultHash := hashRows(reduced)

	if opts != nil && opts.ResultHash != "" && opts.ResultHash == resultHash {
		s.reply(ctx, from, wire.NewResult(requestID, nil, &wire.Meta{Unchanged: true}))
		return
	}

	limit := s.chunkLimitFor(opts)
	total := len(reduced)
	chunk := sliceRows(reduced, 0, limit)
	done := limit >= total

	var queryID string
	if !done {
		queryID = wire.NewRequestID()
		s.storeSnapshot(queryID, reduced, resultHash, adapter.Name(), data.Method)
	}

	body, _ := json.Marshal(chunk)
	s.reply(ctx, from, wire.NewResult(requestID, body, &wire.Meta{
		Chunked:    true,
		Total:      total,
		Offset:     0,
		Limit:      limit,
		Done:       done,
		QueryID:    queryID,
		ResultHash: resultHash,
	}))
}

func (s *Server) handleHeavyPage(ctx context.Context, from, requestID, peripheralName, method string, opts *wire.CallOptions) {
	s.mu.Lock()
	s.sweepSnapshotsLocked(time.Now())
	if opts.QueryID == "" {
		s.mu.Unlock()
		s.replyError(ctx, from, requestID, ErrSnapshotRequired)
		return
	}
	entry, ok := s.snapshots[opts.QueryID]
	if !ok {
		s.mu.Unlock()
		s.replyError(ctx, from, requestID, ErrSnapshotExpired)
		return
	}
	entry.expiresAt = time.Now().Add(s.snapshotTTL) // spec §3: Snapshot TTL "refreshed on access"
	items := entry.items
	resultHash := entry.resultHash
	s.mu.Unlock()

	limit := s.chunkLimitFor(opts)
	total := len(items)
	offset := opts.Offset
	if offset > total {
		offset = total
	}
	chunk := sliceRows(items, offset, limit)
	done := offset+limit >= total

	body, _ := json.Marshal(chunk)
	s.reply(ctx, from, wire.NewResult(requestID, body, &wire.Meta{
		Chunked:    true,
		Total:      total,
		Offset:     offset,
		Limit:      limit,
		Done:       done,
		QueryID:    opts.QueryID,
		ResultHash: resultHash,
	}))

	if done {
		s.mu.Lock()
		delete(s.snapshots, opts.QueryID)
		metrics.HostSnapshotsActive.Set(float64(len(s.snapshots)))
		s.mu.Unlock()
	}
}

func (s *Server) storeSnapshot(queryID string, items []json.RawMessage, resultHash, peripheralName, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[queryID] = &snapshotEntry{
		items:      items,
		resultHash: resultHash,
		peripheral: peripheralName,
		method:     method,
		expiresAt:  time.Now().Add(s.snapshotTTL),
	}
	metrics.HostSnapshotsActive.Set(float64(len(s.snapshots)))
}

// chunkLimitFor returns the page size a heavy-method response is cut
// to: the caller's requested limit if given, otherwise this Server's
// configured default, capped at its configured ceiling (spec §4.8
// chunking, overridable per-deployment via WithChunkLimit).
func (s *Server) chunkLimitFor(opts *wire.CallOptions) int {
	limit := s.chunkLimit
	if opts != nil && opts.Limit > 0 {
		limit = opts.Limit
	}
	if limit > s.maxChunkLimit {
		limit = s.maxChunkLimit
	}
	return limit
}

func sliceRows(rows []json.RawMessage, offset, limit int) []json.RawMessage {
	if offset >= len(rows) {
		return []json.RawMessage{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return append([]json.RawMessage(nil), rows[offset:end]...)
}

// reduceHeavyRows parses raw as a JSON array of records and keeps only
// the whitelisted fields per record, per spec §4.8 step 1.
func reduceHeavyRows(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("host: heavy method result is not a JSON array of objects: %w", err)
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		reduced := make(map[string]json.RawMessage, len(heavyFieldWhitelist))
		for _, field := range heavyFieldWhitelist {
			if v, ok := row[field]; ok {
				reduced[field] = v
			}
		}
		b, err := json.Marshal(reduced)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out, nil
}

// hashRows computes spec §4.8 step 2's resultHash: a deterministic
// digest over the reduced, sorted rows.
func hashRows(rows []json.RawMessage) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = string(r)
	}
	return envelope.Hash(parts...)
}

func (s *Server) reply(ctx context.Context, to string, msg wire.Message) {
	if err := s.link.SendTo(ctx, to, msg); err != nil {
		s.log.Warn("failed to send response", logger.String("to", to), logger.RequestID(msg.RequestID), logger.Error(err))
	}
}

func (s *Server) replyError(ctx context.Context, to, requestID, code string) {
	s.reply(ctx, to, wire.NewError(requestID, code))
}

func (s *Server) fireHook(peripheralName, method string, err error, d time.Duration) {
	typ := "unknown"
	if adapter, ok := s.adapterFor(peripheralName); ok {
		typ = adapter.Type()
	}
	metrics.HostInvokeDuration.WithLabelValues(typ).Observe(d.Seconds())
	metrics.HostInvokesTotal.WithLabelValues(typ, invokeOutcome(err)).Inc()

	if s.hook != nil {
		s.hook(peripheralName, method, err, d)
	}
}

func invokeOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if err.Error() == ErrPeripheralNotFound || err.Error() == ErrMethodNotFound {
		return "not_found"
	}
	return "invoke_failed"
}
