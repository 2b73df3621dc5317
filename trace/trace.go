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

// Package trace is the one-way reporting channel the core uses instead of
// returning errors for conditions it already recovered from locally
// (malformed packet, duplicate ant, exhausted broadcast budget, neighbor
// vanished, interface down on send). Nothing in the core panics; these
// calls are the only upward signal a host gets about dropped traffic.
package trace

import "anthocnet/address"

// AntDropReason names why a forward-ant, backward-ant, hello or
// link-failure packet was dropped instead of processed.
type AntDropReason string

const (
	ReasonMalformed        AntDropReason = "malformed"
	ReasonDuplicate        AntDropReason = "duplicate"
	ReasonTTLExpired       AntDropReason = "ttl_expired"
	ReasonNoRoute          AntDropReason = "no_route"
	ReasonNotANeighbor     AntDropReason = "not_a_neighbor"
	ReasonInterfaceDown    AntDropReason = "interface_down"
	ReasonBroadcastBlocked AntDropReason = "broadcast_blocked"
)

// DataDropReason names why a user datagram was dropped rather than
// forwarded or cached.
type DataDropReason string

const (
	DataReasonNoRouteAfterBudget DataDropReason = "no_route_after_budget"
	DataReasonCacheFull          DataDropReason = "cache_full"
	DataReasonBlackhole          DataDropReason = "blackhole"
	DataReasonInterfaceDown      DataDropReason = "interface_down"
)

// Sink receives observability events. Implementations must not block the
// caller for long; the core calls these synchronously from packet/timer
// handlers.
type Sink interface {
	AntDrop(kind string, reason AntDropReason, src address.Address, seqno uint64)
	DataDrop(dst address.Address, reason DataDropReason)
	NeighborExpired(n address.Address)
	LinkFailurePropagated(dst address.Address)
	HelloSent(iface string)
	ProactiveAntSent(dst address.Address)
}

// NopSink discards every event. It is the default when a host does not
// want observability wiring, and is what most unit tests use.
type NopSink struct{}

func (NopSink) AntDrop(string, AntDropReason, address.Address, uint64) {}
func (NopSink) DataDrop(address.Address, DataDropReason)                {}
func (NopSink) NeighborExpired(address.Address)                         {}
func (NopSink) LinkFailurePropagated(address.Address)                   {}
func (NopSink) HelloSent(string)                                        {}
func (NopSink) ProactiveAntSent(address.Address)                        {}
