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

package sim

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"anthocnet/address"
)

const floodMarker = 0x01

// floodEnvelope is the payload FloodStrategy relays: no pheromone table, no
// ants, just a TTL-bounded broadcast rebroadcast once per node. It is the
// baseline the concrete "forward-ant broadcast" scenarios are implicitly
// measured against: what reactive discovery costs if nothing is learned
// between requests.
type floodEnvelope struct {
	Origin address.Address `cbor:"1,keyasint"`
	Dest   address.Address `cbor:"2,keyasint"`
	ReqID  uint64          `cbor:"3,keyasint"`
	TTL    uint8           `cbor:"4,keyasint"`
	Hops   int             `cbor:"5,keyasint"`
}

func encodeFlood(e floodEnvelope) []byte {
	body, err := cbor.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("sim: encoding flood envelope: %v", err))
	}
	return append([]byte{floodMarker}, body...)
}

func decodeFlood(b []byte) (floodEnvelope, bool) {
	var e floodEnvelope
	if len(b) == 0 || b[0] != floodMarker {
		return e, false
	}
	if err := cbor.Unmarshal(b[1:], &e); err != nil {
		return e, false
	}
	return e, true
}

// FloodStrategy is the standard flood-and-dedup baseline: every node
// rebroadcasts a given (origin, reqID) datagram exactly once, and the
// destination resolves the request the first time a copy reaches it.
type FloodStrategy struct {
	InitialTTL uint8
}

// NewFloodStrategy returns a flood baseline with the given hop budget.
func NewFloodStrategy(initialTTL uint8) *FloodStrategy {
	return &FloodStrategy{InitialTTL: initialTTL}
}

func (s *FloodStrategy) Name() string { return "Flood" }

func (s *FloodStrategy) NewNode(net *Network, self address.Address) NodeAgent {
	ttl := s.InitialTTL
	if ttl == 0 {
		ttl = 32
	}
	a := &floodAgent{self: self, net: net, ttl: ttl, seen: make(map[uint64]bool)}
	a.h = net.AddNode(self, a.recv)
	return a
}

type floodAgent struct {
	self address.Address
	net  *Network
	h    *nodeHost
	ttl  uint8
	seen map[uint64]bool
}

func (a *floodAgent) SendData(dst address.Address, done func(delivered bool, hops int)) {
	id := a.net.registerRequest(done)
	a.seen[id] = true
	env := floodEnvelope{Origin: a.self, Dest: dst, ReqID: id, TTL: a.ttl, Hops: 0}
	_ = a.h.Send(simIface, address.Zero, encodeFlood(env))
}

func (a *floodAgent) recv(iface string, from address.Address, b []byte) {
	env, ok := decodeFlood(b)
	if !ok {
		return
	}
	if a.seen[env.ReqID] {
		return
	}
	a.seen[env.ReqID] = true
	env.Hops++

	if env.Dest == a.self {
		a.net.completeRequest(env.ReqID, true, env.Hops)
		return
	}
	if env.TTL == 0 {
		return
	}
	env.TTL--
	_ = a.h.Send(simIface, address.Zero, encodeFlood(env))
}
