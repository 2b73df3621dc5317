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

// Package sim is an in-memory multi-node network: a virtual clock drives a
// shared event queue, and a mutable adjacency table stands in for a real
// wireless topology. It lets the routing core's concrete scenarios (single
// and multi-hop discovery, evaporation, link-failure cascades) run in a
// single process instead of against a real radio, and is the engine behind
// cmd/simulate.
package sim

import (
	"container/heap"
	"math/rand"
	"sort"
	"time"

	"anthocnet/address"
)

const simIface = "sim0"

type event struct {
	at  time.Time
	seq uint64
	fn  func()
}

type eventHeap []*event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// recvFunc is what a node registers with the Network to accept an inbound
// datagram, control or data alike.
type recvFunc func(iface string, from address.Address, b []byte)

// Network owns the virtual clock, the event queue every nodeHost schedules
// timers on, and the current neighbor topology. LinkLatency is applied to
// every delivered datagram, unicast or broadcast.
type Network struct {
	now         time.Time
	queue       eventHeap
	seq         uint64
	nodes       []address.Address
	recv        map[address.Address]recvFunc
	adjacency   map[address.Address]map[address.Address]bool
	LinkLatency time.Duration
	masterRNG   *rand.Rand

	reqSeq  uint64
	pending map[uint64]func(delivered bool, hops int)
}

// NewNetwork returns an empty network seeded for reproducible per-node
// randomness (hello jitter, ant seqnos, tie-breaking).
func NewNetwork(start time.Time, seed int64, linkLatency time.Duration) *Network {
	n := &Network{
		now:         start,
		recv:        make(map[address.Address]recvFunc),
		adjacency:   make(map[address.Address]map[address.Address]bool),
		LinkLatency: linkLatency,
		masterRNG:   rand.New(rand.NewSource(seed)),
		pending:     make(map[uint64]func(bool, int)),
	}
	heap.Init(&n.queue)
	return n
}

// registerRequest allocates a request id and remembers done, to be invoked
// exactly once via completeRequest or FailAllPending.
func (n *Network) registerRequest(done func(delivered bool, hops int)) uint64 {
	n.reqSeq++
	n.pending[n.reqSeq] = done
	return n.reqSeq
}

// completeRequest resolves a still-pending request id. A request already
// resolved (or unknown) is a silent no-op, since both the delivering node
// and an error path can race to report the same id.
func (n *Network) completeRequest(id uint64, delivered bool, hops int) {
	done, ok := n.pending[id]
	if !ok {
		return
	}
	delete(n.pending, id)
	done(delivered, hops)
}

// FailAllPending resolves every request still outstanding as undelivered.
// Call it after a Run window closes so no in-flight datagram's callback
// goes permanently unfired.
func (n *Network) FailAllPending() {
	for id, done := range n.pending {
		delete(n.pending, id)
		done(false, 0)
	}
}

// AddNode registers an address in the topology and returns a host.Host bound
// to it, wired into the network's event queue and clock. r is the dispatch
// callback the node's owner (a Strategy) will route inbound datagrams to.
func (n *Network) AddNode(self address.Address, r recvFunc) *nodeHost {
	n.nodes = append(n.nodes, self)
	n.recv[self] = r
	n.adjacency[self] = make(map[address.Address]bool)
	return &nodeHost{net: n, self: self, rng: rand.New(rand.NewSource(n.masterRNG.Int63()))}
}

// Link marks a and b as symmetric neighbors (in radio range of each other).
func (n *Network) Link(a, b address.Address) {
	n.adjacency[a][b] = true
	n.adjacency[b][a] = true
}

// Unlink removes a's and b's mutual reachability, modeling mobility or a
// node powering off. The routing core discovers this the same way it would
// on real hardware: missed hellos age out via nb_expire, not via an
// artificial notification.
func (n *Network) Unlink(a, b address.Address) {
	delete(n.adjacency[a], b)
	delete(n.adjacency[b], a)
}

// Neighbors returns the current, sorted neighbor set of self.
func (n *Network) Neighbors(self address.Address) []address.Address {
	set := n.adjacency[self]
	out := make([]address.Address, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Uint32() < out[j].Uint32() })
	return out
}

func (n *Network) schedule(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	n.seq++
	heap.Push(&n.queue, &event{at: n.now.Add(d), seq: n.seq, fn: fn})
}

// deliver fans b out from "from" to "to" (or, if to is the broadcast
// sentinel, to every current neighbor of from), after LinkLatency.
func (n *Network) deliver(from, to address.Address, b []byte) {
	targets := []address.Address{to}
	if to.IsZero() {
		targets = n.Neighbors(from)
	}
	for _, t := range targets {
		if !n.adjacency[from][t] {
			continue
		}
		recv, ok := n.recv[t]
		if !ok {
			continue
		}
		n.schedule(n.LinkLatency, func() { recv(simIface, from, b) })
	}
}

// Run drains every event scheduled at or before the clock's current
// instant plus d, advancing the virtual clock as it goes.
func (n *Network) Run(d time.Duration) {
	deadline := n.now.Add(d)
	for n.queue.Len() > 0 && !n.queue[0].at.After(deadline) {
		e := heap.Pop(&n.queue).(*event)
		n.now = e.at
		e.fn()
	}
	n.now = deadline
}

// Now returns the network's current virtual instant.
func (n *Network) Now() time.Time { return n.now }
