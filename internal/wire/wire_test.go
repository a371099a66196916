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

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRequest(t *testing.T) {
	call := NewCall("inv0", "list", nil, nil)
	assert.True(t, call.IsRequest())

	result := NewResult(call.RequestID, nil, nil)
	assert.False(t, result.IsRequest(), "a response type is never a request even with requestId set")

	announce := NewAnnounce(AnnounceData{HostID: "A"})
	assert.False(t, announce.IsRequest())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	assert.ErrorIs(t, Message{}.Validate(), ErrMissingType)
	assert.ErrorIs(t, Message{Type: PeriphDiscover}.Validate(), ErrMissingTimestamp)
	assert.ErrorIs(t, Message{Type: "BOGUS", Timestamp: 1}.Validate(), ErrUnknownType)

	valid := NewDiscover()
	assert.NoError(t, valid.Validate())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewCall("bridge", "getItems", []byte(`{"a":1}`), &CallOptions{Limit: 200})

	payload, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.RequestID, decoded.RequestID)
	assert.JSONEq(t, string(msg.Data), string(decoded.Data))
}

func TestEncodeIsDeterministic(t *testing.T) {
	data := ListData{
		HostID:   "A",
		HostName: "computer_1",
		Peripherals: []PeripheralDescriptor{
			{Name: "inv0", Type: "minecraft:chest", Methods: []string{"list", "size"}},
		},
	}
	msg := NewList("req-1", data)
	msg.Timestamp = 1700000000000

	a, err := Encode(msg)
	require.NoError(t, err)
	b, err := Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLegacyAnnounceDetection(t *testing.T) {
	legacy := AnnounceData{
		HostID: "A",
		Peripherals: []PeripheralDescriptor{
			{Name: "inv0", Type: "chest"},
		},
	}
	assert.True(t, legacy.IsLegacy())

	modern := AnnounceData{HostID: "A", StateHash: "abc123"}
	assert.False(t, modern.IsLegacy())
}
