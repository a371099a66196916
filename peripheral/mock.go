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

package peripheral

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockAdapter is a test double for Adapter, grounded on the teacher's
// transport.MockTransport capture-and-override style
// (pkg/agent/transport/mock.go): a table of per-method responses with
// an optional override function, plus a capture log for assertions.
type MockAdapter struct {
	name    string
	typ     string
	methods []string

	// InvokeFunc, if set, is called for every Invoke instead of the
	// Results table.
	InvokeFunc func(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error)

	// Results maps method name to the canned JSON result returned
	// when InvokeFunc is nil.
	Results map[string]json.RawMessage

	// Panics, if true for a method, makes Invoke panic instead of
	// returning — used to exercise the host server's crash isolation.
	Panics map[string]bool

	mu      sync.Mutex
	Invoked []InvokeCall
}

// InvokeCall is one captured call against a MockAdapter.
type InvokeCall struct {
	Method string
	Args   json.RawMessage
}

// NewMockAdapter creates a mock peripheral named name of type typ
// exposing methods.
func NewMockAdapter(name, typ string, methods []string) *MockAdapter {
	return &MockAdapter{
		name:    name,
		typ:     typ,
		methods: methods,
		Results: make(map[string]json.RawMessage),
		Panics:  make(map[string]bool),
	}
}

func (m *MockAdapter) Name() string      { return m.name }
func (m *MockAdapter) Type() string      { return m.typ }
func (m *MockAdapter) Methods() []string { return m.methods }

// Invoke implements Adapter.
func (m *MockAdapter) Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	m.Invoked = append(m.Invoked, InvokeCall{Method: method, Args: args})
	m.mu.Unlock()

	if m.Panics[method] {
		panic(fmt.Sprintf("mock adapter %s: simulated panic in %s", m.name, method))
	}
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, method, args)
	}
	if result, ok := m.Results[method]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("mock adapter %s: no method %q", m.name, method)
}

// CallCount returns how many times method was invoked.
func (m *MockAdapter) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Invoked {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears the capture log.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoked = nil
}
