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

import "errors"

var (
	// ErrTimeout is returned when a call's deadline passes before a
	// matching response arrives (spec §4.6 "Timeout sweep").
	ErrTimeout = errors.New("rpc: call timed out")

	// ErrSnapshotRequired is returned when the host rejects a
	// follow-up page request that carries no queryId.
	ErrSnapshotRequired = errors.New("rpc: snapshot_required")

	// ErrSnapshotExpired is returned when a follow-up page request
	// names a queryId the host does not hold: one it never minted or
	// one whose snapshot has already expired.
	ErrSnapshotExpired = errors.New("rpc: snapshot_expired")

	// ErrClosed is returned by Call after the engine has been closed.
	ErrClosed = errors.New("rpc: engine is closed")
)

// remoteErrorCode classifies a PERIPH_ERROR's message string into one
// of the sentinel errors above when it matches a known code, else
// wraps it as a generic remote error.
func remoteErrorCode(msg string) error {
	switch msg {
	case "snapshot_required":
		return ErrSnapshotRequired
	case "snapshot_expired":
		return ErrSnapshotExpired
	default:
		return &RemoteError{Message: msg}
	}
}

// RemoteError wraps a PERIPH_ERROR's message as reported by the
// remote host.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "rpc: remote error: " + e.Message }
