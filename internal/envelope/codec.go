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

package envelope

import (
	"encoding/json"
	"time"
)

// DefaultMaxMessageAge is MAX_MESSAGE_AGE from spec §6.
const DefaultMaxMessageAge = 60 * time.Second

// MaxFutureSkew is the allowed clock skew into the future, spec §4.1.
const MaxFutureSkew = 5 * time.Second

// Envelope is the signed, timestamped, nonced wire wrapper around a
// single protocol message (spec §3 / §6 "Wire format"). Payload is an
// opaque serialized message string; the envelope codec never inspects
// it.
type Envelope struct {
	Version   int    `json:"v"`
	Payload   string `json:"p"`
	Timestamp int64  `json:"t"`
	Nonce     string `json:"n"`
	Signature string `json:"s"`
}

// EnvelopeVersion is the only version this codec currently emits/accepts.
const EnvelopeVersion = 1

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Codec signs and verifies envelopes against a SecurityContext and a
// shared NonceCache. A Codec is safe for concurrent use.
type Codec struct {
	sc         *SecurityContext
	nonces     *NonceCache
	maxAge     time.Duration
	futureSkew time.Duration
	now        Clock
}

// NewCodec constructs a Codec. maxAge defaults to DefaultMaxMessageAge
// when zero.
func NewCodec(sc *SecurityContext, nonces *NonceCache, maxAge time.Duration) *Codec {
	if maxAge <= 0 {
		maxAge = DefaultMaxMessageAge
	}
	return &Codec{
		sc:         sc,
		nonces:     nonces,
		maxAge:     maxAge,
		futureSkew: MaxFutureSkew,
		now:        time.Now,
	}
}

// WithClock overrides the codec's time source, for tests.
func (c *Codec) WithClock(clock Clock) *Codec {
	c.now = clock
	return c
}

// WithFutureSkew overrides the allowed clock skew into the future
// (config.TunablesConfig.FutureSkew); a non-positive skew is ignored.
func (c *Codec) WithFutureSkew(skew time.Duration) *Codec {
	if skew > 0 {
		c.futureSkew = skew
	}
	return c
}

// Sign produces a signed envelope for payload. Per spec §4.1 and §7,
// signing without a configured secret is a hard precondition failure:
// callers must never attempt to send without one.
func (c *Codec) Sign(payload string) (*Envelope, error) {
	if !c.sc.HasSecret() {
		return nil, ErrNoSecret
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	ts := c.now().UnixMilli()
	sig := signatureInput(payload, ts, nonce, c.sc.Secret())

	return &Envelope{
		Version:   EnvelopeVersion,
		Payload:   payload,
		Timestamp: ts,
		Nonce:     nonce,
		Signature: sig,
	}, nil
}

// Verify validates env and returns its payload. Absence of a secret
// causes a silent-drop-shaped error (ErrNoSecret): per spec §7, a
// receiver with no secret configured can never trust any message, but
// this is not a protocol violation by the sender, so callers must
// treat it the same as every other Verify error — drop and log,
// never propagate.
func (c *Codec) Verify(env *Envelope) (string, error) {
	if env == nil {
		return "", ErrMalformed
	}
	if env.Version != EnvelopeVersion || env.Nonce == "" || env.Signature == "" {
		return "", ErrMalformed
	}
	if !c.sc.HasSecret() {
		return "", ErrNoSecret
	}

	now := c.now()
	age := now.Sub(time.UnixMilli(env.Timestamp))
	if age > c.maxAge {
		return "", ErrExpired
	}
	if age < -c.futureSkew {
		return "", ErrFuture
	}

	expected := signatureInput(env.Payload, env.Timestamp, env.Nonce, c.sc.Secret())
	if expected != env.Signature {
		return "", ErrBadSignature
	}

	if c.nonces.SeenOrMark(env.Nonce, now) {
		return "", ErrReplay
	}

	return env.Payload, nil
}

// EncodeEnvelope serializes env to the JSON string carried as a
// transport frame's payload.
func EncodeEnvelope(env *Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeEnvelope parses a transport frame's payload back into an
// Envelope. A malformed payload yields ErrMalformed rather than the
// raw json error, so callers can uniformly treat it as a drop-worthy
// verification failure.
func DecodeEnvelope(payload string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, ErrMalformed
	}
	return &env, nil
}
