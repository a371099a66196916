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

// Error codes carried as the string body of a PERIPH_ERROR, per spec
// §7's taxonomy. These travel over the wire as plain strings (not Go
// errors) so a remote rpc.Engine can classify them without a shared
// error type between host and client processes.
const (
	ErrPeripheralNotFound = "peripheral_not_found"
	ErrMethodNotFound     = "method_not_found"
	ErrMethodUnavailable  = "method_unavailable"
	ErrInvokeFailed       = "invoke_failed"
	ErrSnapshotRequired   = "snapshot_required"
	ErrSnapshotExpired    = "snapshot_expired"
)
