// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: November 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"testing"

	"anthocnet/address"
)

func TestForwardAntRoundTrip(t *testing.T) {
	fa := ForwardAnt{
		Source:          address.FromUint32(1),
		Destination:     address.FromUint32(2),
		TTL:             30,
		Seqno:           99,
		Visited:         []address.Address{address.FromUint32(1)},
		BroadcastBudget: 2,
	}
	buf, err := Encode(TypeForwardAnt, fa.TTL, fa)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	typ, ttl, body, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected header decode error: %v", err)
	}
	if typ != TypeForwardAnt {
		t.Fatalf("expected type %v, got %v", TypeForwardAnt, typ)
	}
	if ttl != 30 {
		t.Fatalf("expected ttl 30, got %d", ttl)
	}
	got, err := DecodeForwardAnt(body)
	if err != nil {
		t.Fatalf("unexpected body decode error: %v", err)
	}
	if got.Source != fa.Source || got.Destination != fa.Destination || got.Seqno != fa.Seqno {
		t.Fatalf("round-tripped ForwardAnt mismatch: got %+v want %+v", got, fa)
	}
	if len(got.Visited) != 1 || got.Visited[0] != fa.Source {
		t.Fatalf("expected visited list to round-trip, got %v", got.Visited)
	}
}

func TestDecodeHeaderRejectsShortPacket(t *testing.T) {
	if _, _, _, err := DecodeHeader([]byte{1}); err == nil {
		t.Fatalf("expected error decoding a 1-byte packet")
	}
}

func TestDecodeForwardAntRejectsMalformedBody(t *testing.T) {
	if _, err := DecodeForwardAnt([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatalf("expected error decoding a malformed body")
	}
}

func TestLinkFailureMsgRoundTrip(t *testing.T) {
	msg := LinkFailureMsg{
		Source: address.FromUint32(5),
		Updates: []LinkFailureUpdate{
			{Destination: address.FromUint32(9), Status: StatusOnlyValue, NewPheromone: 0},
			{Destination: address.FromUint32(10), Status: StatusNewBestValue, NewPheromone: 0.42},
		},
	}
	buf, err := Encode(TypeLinkFailureMsg, 0, msg)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	_, _, body, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected header decode error: %v", err)
	}
	got, err := DecodeLinkFailureMsg(body)
	if err != nil {
		t.Fatalf("unexpected body decode error: %v", err)
	}
	if len(got.Updates) != 2 || got.Updates[1].Status != StatusNewBestValue {
		t.Fatalf("round-tripped LinkFailureMsg mismatch: %+v", got)
	}
}

func TestHelloMsgDiffusionSign(t *testing.T) {
	h := HelloMsg{
		Source: address.FromUint32(1),
		Entries: []DiffusionEntry{
			{Destination: address.FromUint32(2), Value: 0.5, Sign: SignReal},
			{Destination: address.FromUint32(3), Value: 0.25, Sign: SignVirtual},
		},
	}
	buf, err := Encode(TypeHelloMsg, 0, h)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	_, _, body, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected header decode error: %v", err)
	}
	got, err := DecodeHelloMsg(body)
	if err != nil {
		t.Fatalf("unexpected body decode error: %v", err)
	}
	if got.Entries[0].Sign != SignReal || got.Entries[1].Sign != SignVirtual {
		t.Fatalf("expected diffusion signs to round-trip, got %+v", got.Entries)
	}
}
