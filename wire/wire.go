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

// Package wire defines the on-the-wire records the routing core exchanges
// and a CBOR codec for them. Every control datagram begins with a one-octet
// TypeHeader and a TTL tag byte, followed by the CBOR-encoded body; the TTL
// tag lets a receiver decrement hop count without decoding the body.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"anthocnet/address"
)

// TypeHeader identifies the kind of control packet that follows.
type TypeHeader byte

const (
	TypeHelloMsg TypeHeader = iota + 1
	TypeHelloAck
	TypeForwardAnt
	TypeProactiveForwardAnt
	TypeBackwardAnt
	TypeLinkFailureMsg
)

func (t TypeHeader) String() string {
	switch t {
	case TypeHelloMsg:
		return "HELLO_MSG"
	case TypeHelloAck:
		return "HELLO_ACK"
	case TypeForwardAnt:
		return "FW_ANT"
	case TypeProactiveForwardAnt:
		return "PRFW_ANT"
	case TypeBackwardAnt:
		return "BW_ANT"
	case TypeLinkFailureMsg:
		return "LINK_FAILURE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// ForwardAnt walks the network collecting the path to Destination, either
// reactively (a data send with no known route) or proactively (a periodic
// sample of an active session's destination).
type ForwardAnt struct {
	Source          address.Address   `cbor:"1,keyasint"`
	Destination     address.Address   `cbor:"2,keyasint"`
	TTL             uint8             `cbor:"3,keyasint"`
	Seqno           uint64            `cbor:"4,keyasint"`
	Visited         []address.Address `cbor:"5,keyasint"`
	BroadcastBudget uint8             `cbor:"6,keyasint"`
	Proactive       bool              `cbor:"7,keyasint"`
}

// BackwardAnt reverses a ForwardAnt's path, reinforcing pheromone at every
// hop as it returns to the originator.
type BackwardAnt struct {
	Source       address.Address   `cbor:"1,keyasint"`
	Destination  address.Address   `cbor:"2,keyasint"`
	Seqno        uint64            `cbor:"3,keyasint"`
	Visited      []address.Address `cbor:"4,keyasint"` // consumed in reverse
	AccumulatedT int64             `cbor:"5,keyasint"` // nanoseconds, or SNR-cost units
	Hops         uint32            `cbor:"6,keyasint"`
	MaxHops      uint32            `cbor:"7,keyasint"`
}

// DiffusionSign encodes whether a hello-message diffusion entry is backed
// by a real, completed-round-trip pheromone or a virtual, bootstrapped one.
type DiffusionSign int8

const (
	SignReal    DiffusionSign = 1
	SignVirtual DiffusionSign = -1
)

// DiffusionEntry is one destination's best-known pheromone, piggybacked on
// a HelloMsg. Value is always non-negative; Sign carries real/virtual.
type DiffusionEntry struct {
	Destination address.Address `cbor:"1,keyasint"`
	Value       float64         `cbor:"2,keyasint"`
	Sign        DiffusionSign   `cbor:"3,keyasint"`
}

// HelloMsg is the periodic neighbor-maintenance broadcast, carrying up to k
// diffusion entries bootstrapping neighbors' virtual pheromone.
type HelloMsg struct {
	Source  address.Address  `cbor:"1,keyasint"`
	Entries []DiffusionEntry `cbor:"2,keyasint"`
	SentAt  int64            `cbor:"3,keyasint"` // unix nanos, echoed back by HelloAck
}

// HelloAck is the unicast reply to a HelloMsg, used to sample per-neighbor
// transmission cost.
type HelloAck struct {
	Source      address.Address `cbor:"1,keyasint"`
	HelloSentAt int64           `cbor:"2,keyasint"`
}

// LinkFailureStatus classifies one destination update inside a
// LinkFailureMsg.
type LinkFailureStatus int8

const (
	StatusValue LinkFailureStatus = iota
	StatusOnlyValue
	StatusNewBestValue
)

func (s LinkFailureStatus) String() string {
	switch s {
	case StatusValue:
		return "VALUE"
	case StatusOnlyValue:
		return "ONLY_VALUE"
	case StatusNewBestValue:
		return "NEW_BEST_VALUE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int8(s))
	}
}

// LinkFailureUpdate is one destination entry inside a LinkFailureMsg.
type LinkFailureUpdate struct {
	Destination  address.Address   `cbor:"1,keyasint"`
	Status       LinkFailureStatus `cbor:"2,keyasint"`
	NewPheromone float64           `cbor:"3,keyasint"`
}

// LinkFailureMsg propagates the consequences of a broken link upstream.
type LinkFailureMsg struct {
	Source  address.Address     `cbor:"1,keyasint"`
	Updates []LinkFailureUpdate `cbor:"2,keyasint"`
}

var encMode, decMode = mustCodecModes()

func mustCodecModes() (cbor.EncMode, cbor.DecMode) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building canonical encoder: %v", err))
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building decoder: %v", err))
	}
	return enc, dec
}

// Encode prefixes the CBOR body with a TypeHeader octet and a TTL tag byte,
// so receivers can decrement TTL without decoding the body (spec: "TTL is
// carried in a per-packet tag").
func Encode(t TypeHeader, ttl uint8, body interface{}) ([]byte, error) {
	payload, err := encMode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", t, err)
	}
	out := make([]byte, 2+len(payload))
	out[0] = byte(t)
	out[1] = ttl
	copy(out[2:], payload)
	return out, nil
}

// DecodeHeader reads the TypeHeader and TTL tag without decoding the body.
func DecodeHeader(b []byte) (t TypeHeader, ttl uint8, body []byte, err error) {
	if len(b) < 2 {
		return 0, 0, nil, fmt.Errorf("wire: packet too short (%d bytes)", len(b))
	}
	return TypeHeader(b[0]), b[1], b[2:], nil
}

// DecodeForwardAnt decodes a ForwardAnt body.
func DecodeForwardAnt(body []byte) (ForwardAnt, error) {
	var fa ForwardAnt
	err := decMode.Unmarshal(body, &fa)
	return fa, wrapDecodeErr(TypeForwardAnt, err)
}

// DecodeBackwardAnt decodes a BackwardAnt body.
func DecodeBackwardAnt(body []byte) (BackwardAnt, error) {
	var ba BackwardAnt
	err := decMode.Unmarshal(body, &ba)
	return ba, wrapDecodeErr(TypeBackwardAnt, err)
}

// DecodeHelloMsg decodes a HelloMsg body.
func DecodeHelloMsg(body []byte) (HelloMsg, error) {
	var h HelloMsg
	err := decMode.Unmarshal(body, &h)
	return h, wrapDecodeErr(TypeHelloMsg, err)
}

// DecodeHelloAck decodes a HelloAck body.
func DecodeHelloAck(body []byte) (HelloAck, error) {
	var h HelloAck
	err := decMode.Unmarshal(body, &h)
	return h, wrapDecodeErr(TypeHelloAck, err)
}

// DecodeLinkFailureMsg decodes a LinkFailureMsg body.
func DecodeLinkFailureMsg(body []byte) (LinkFailureMsg, error) {
	var m LinkFailureMsg
	err := decMode.Unmarshal(body, &m)
	return m, wrapDecodeErr(TypeLinkFailureMsg, err)
}

func wrapDecodeErr(t TypeHeader, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("wire: decode %s: %w", t, err)
}
