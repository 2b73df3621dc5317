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

// Package host defines the single abstraction the routing core depends on
// for every external collaborator: sending bytes, scheduling timers,
// reading the clock, drawing randomness, and resolving MAC addresses.
// cmd/anthocnetd implements Host over real UDP sockets; sim implements it
// over an in-memory topology and a virtual clock.
package host

import (
	"time"

	"anthocnet/address"
)

// Host is everything the core needs from its environment. A RoutingTable,
// AntStateMachine and ProtocolFacade never touch net, time, or math/rand
// directly; they call through a Host.
type Host interface {
	// Send best-effort-delivers b out iface to the neighbor at to. Returns
	// an error only for conditions the caller must react to (e.g. an
	// unknown interface); a down interface is a silent no-op per the
	// protocol's error-handling design, not an error return.
	Send(iface string, to address.Address, b []byte) error

	// ScheduleAfter runs fn once, after d has elapsed. Cancellation is not
	// exposed: the protocol never cancels a scheduled send or timer tick
	// mid-flight.
	ScheduleAfter(d time.Duration, fn func())

	// Now returns the current time, delegating to the injected clock.
	Now() time.Time

	// RandUniformF64 draws uniformly from [0,1).
	RandUniformF64() float64

	// RandUniformInt draws uniformly from [lo,hi).
	RandUniformInt(lo, hi int) int

	// LookupIPv4ByMAC resolves a MAC-layer TX-error report to the
	// candidate node addresses it could correspond to.
	LookupIPv4ByMAC(mac string) []address.Address

	// Interfaces lists the node's non-loopback interface names, the set
	// ForwardAnt broadcast and LinkFailureMsg propagation iterate over.
	Interfaces() []string
}
