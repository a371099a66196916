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
	"encoding/hex"
	"hash/fnv"
	"strconv"
)

// multiPassHash is the envelope's signing hash. Per spec §4.1 and §9,
// it is deliberately not a cryptographically secure MAC — the wire
// format predates this port and a production rewrite would substitute
// a keyed MAC, but doing so would break compatibility with existing
// peers, so the weak construction is kept on purpose. It folds the
// input through three FNV-1a passes: the first over the length-prefixed
// join of every part, the second over that digest plus the join again,
// the third over the second digest plus the first. The secret is not
// mixed into each pass; it is simply one of the parts (signatureInput
// passes it last). The output depends on every input byte without
// claiming any cryptographic property.
func multiPassHash(parts ...string) string {
	pass1 := fnvSum(join(parts))
	pass2 := fnvSum(pass1 + "|" + join(parts))
	pass3 := fnvSum(pass2 + "|" + pass1)
	return pass3
}

func fnvSum(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * uint(i)))
	}
	return hex.EncodeToString(buf)
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\x1f"
		}
		out += strconv.Itoa(len(p)) + ":" + p
	}
	return out
}

// signatureInput computes the deterministic string the signature is
// derived from: payload || timestamp || nonce || secret, per spec §3.
func signatureInput(payload string, timestamp int64, nonce, secret string) string {
	return multiPassHash(payload, strconv.FormatInt(timestamp, 10), nonce, secret)
}

// Hash exposes the same deliberately-weak multi-pass digest used for
// envelope signatures (spec §9 "weak hash vs real MAC") to the rest of
// the fabric, which needs an identical deterministic-digest primitive
// for the host's stateHash (§4.8) and resultHash (§4.6/§4.8) — both are
// "deterministic digest" values with the same freshness/integrity
// contract as the envelope signature, just unsalted by a secret.
func Hash(parts ...string) string {
	return multiPassHash(parts...)
}
