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
	"math/rand"
	"time"

	"anthocnet/address"
	"anthocnet/host"
)

var _ host.Host = (*nodeHost)(nil)

// nodeHost implements host.Host over a Network: Send fans out through the
// network's adjacency table instead of a socket, ScheduleAfter queues onto
// the network's shared event heap instead of a real timer, and Now reads
// the network's virtual clock. One exists per simulated node.
type nodeHost struct {
	net  *Network
	self address.Address
	rng  *rand.Rand
}

// Send hands b to the network for delivery to to (or, for address.Zero, to
// every current neighbor), after the network's configured LinkLatency.
func (h *nodeHost) Send(iface string, to address.Address, b []byte) error {
	h.net.deliver(h.self, to, b)
	return nil
}

// ScheduleAfter queues fn onto the network's shared event heap at now+d.
func (h *nodeHost) ScheduleAfter(d time.Duration, fn func()) {
	h.net.schedule(d, fn)
}

// Now returns the network's virtual clock.
func (h *nodeHost) Now() time.Time { return h.net.Now() }

// RandUniformF64 draws uniformly from [0,1), from this node's own
// reproducibly-seeded stream.
func (h *nodeHost) RandUniformF64() float64 { return h.rng.Float64() }

// RandUniformInt draws uniformly from [lo,hi).
func (h *nodeHost) RandUniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + h.rng.Intn(hi-lo)
}

// LookupIPv4ByMAC has no analogue in the simulator: node failure is modeled
// by unlinking addresses in the topology, not by synthesizing MAC-layer TX
// errors, so the protocol learns about it the same way it would over real
// hardware — missed hellos aging past nb_expire.
func (h *nodeHost) LookupIPv4ByMAC(mac string) []address.Address { return nil }

// Interfaces reports the node's single simulated radio interface.
func (h *nodeHost) Interfaces() []string { return []string{simIface} }
