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

// Package envelope implements the signed, timestamped, nonced wrapper
// (C1 in the design) around every protocol message. It intentionally
// does not provide cryptographic confidentiality: the signing scheme
// is a keyed, multi-pass string hash, not an AEAD, and the contract it
// provides is integrity + freshness + replay defense over a cooperative
// channel (see spec §4.1 and the non-goals in §1).
package envelope

import "errors"

const minSecretLength = 16

// Sentinel errors returned by Verify. Per the error-handling design,
// none of these are meant to surface as user-visible errors on the
// receive path — callers are expected to drop the message and log at
// Debug, never propagate these outward from a transport channel.
var (
	ErrExpired      = errors.New("envelope: message too old")
	ErrFuture       = errors.New("envelope: message timestamp too far in the future")
	ErrReplay       = errors.New("envelope: nonce already seen")
	ErrBadSignature = errors.New("envelope: signature mismatch")
	ErrMalformed    = errors.New("envelope: malformed envelope")
	ErrNoSecret     = errors.New("envelope: no shared secret configured")
)

// SecurityContext holds the single process-wide shared secret used to
// sign and verify envelopes. It is created once at boot and is
// immutable thereafter (see the design notes on process-wide state):
// callers pass it explicitly into the transport channel constructor,
// it is never stored in a package-level variable.
type SecurityContext struct {
	secret string
}

// NewSecurityContext validates and wraps a pre-installed shared secret.
// A secret shorter than 16 characters is a fatal precondition: the
// caller must not proceed to construct a transport channel without a
// usable secret (spec §4.1, §7 "precondition violations at send time").
func NewSecurityContext(secret string) (*SecurityContext, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("envelope: shared secret must be at least 16 characters")
	}
	return &SecurityContext{secret: secret}, nil
}

// HasSecret reports whether sc is usable. A nil SecurityContext (no
// secret installed) is valid to ask about: Verify treats it as
// ErrNoSecret and Sign treats it as a hard error.
func (sc *SecurityContext) HasSecret() bool {
	return sc != nil && sc.secret != ""
}

// Secret returns the raw shared secret. Used only by Sign/Verify.
func (sc *SecurityContext) Secret() string {
	if sc == nil {
		return ""
	}
	return sc.secret
}
