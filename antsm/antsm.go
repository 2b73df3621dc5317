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

// Package antsm dispatches incoming control packets (hello, hello-ack,
// forward-ant, backward-ant, link-failure) into RoutingTable mutations and
// follow-up sends. It holds no state of its own beyond the optional
// fuzzy-mode expectation ledger; every durable fact lives in routing,
// cache or history.
package antsm

import (
	"time"

	"anthocnet/address"
	"anthocnet/cache"
	"anthocnet/config"
	"anthocnet/history"
	"anthocnet/host"
	"anthocnet/routing"
	"anthocnet/trace"
	"anthocnet/wire"
)

// ExpectationLedger counts sent-vs-delivered datagrams per destination for
// traffic audit under config.FuzzyMode. It is observational only and never
// influences a routing decision.
type ExpectationLedger struct {
	sent      map[address.Address]int
	delivered map[address.Address]int
}

// NewExpectationLedger returns an empty ledger.
func NewExpectationLedger() *ExpectationLedger {
	return &ExpectationLedger{
		sent:      make(map[address.Address]int),
		delivered: make(map[address.Address]int),
	}
}

// RecordSent notes that a datagram was sent toward dst.
func (l *ExpectationLedger) RecordSent(dst address.Address) { l.sent[dst]++ }

// RecordDelivered notes that a datagram addressed to dst was handed on for
// delivery; flushCache records each cached datagram it passes to a next
// hop. The count is local: arrival at dst is not observed.
func (l *ExpectationLedger) RecordDelivered(dst address.Address) { l.delivered[dst]++ }

// Counts returns the sent and delivered counts recorded for dst.
func (l *ExpectationLedger) Counts(dst address.Address) (sent, delivered int) {
	return l.sent[dst], l.delivered[dst]
}

// StateMachine dispatches incoming packets against a RoutingTable, a
// PacketCache and a SeenHistory, using h for sends, timers, clock and
// randomness.
type StateMachine struct {
	cfg     config.Config
	rt      *routing.RoutingTable
	cache   *cache.PacketCache
	history *history.SeenHistory
	h       host.Host
	sink    trace.Sink
	ledger  *ExpectationLedger

	nextSeqno uint64
}

// New returns a StateMachine wired to the given collaborators. ledger may
// be nil when config.FuzzyMode is false.
func New(cfg config.Config, rt *routing.RoutingTable, pc *cache.PacketCache, sh *history.SeenHistory, h host.Host, sink trace.Sink, ledger *ExpectationLedger) *StateMachine {
	if sink == nil {
		sink = trace.NopSink{}
	}
	return &StateMachine{cfg: cfg, rt: rt, cache: pc, history: sh, h: h, sink: sink, ledger: ledger}
}

func (sm *StateMachine) freshSeqno() uint64 {
	sm.nextSeqno++
	return sm.nextSeqno
}

func (sm *StateMachine) jitter(maxNanos int64) time.Duration {
	if maxNanos <= 0 {
		return 0
	}
	return time.Duration(sm.h.RandUniformF64() * float64(maxNanos))
}

func (sm *StateMachine) unicastJitter() time.Duration {
	return sm.jitter(sm.cfg.UnicastJitter.D().Nanoseconds())
}

func (sm *StateMachine) broadcastJitter() time.Duration {
	return sm.jitter(sm.cfg.BroadcastJitter.D().Nanoseconds())
}

func (sm *StateMachine) sendAfter(d time.Duration, iface string, to address.Address, b []byte) {
	sm.h.ScheduleAfter(d, func() {
		_ = sm.h.Send(iface, to, b)
	})
}

// HandleHelloMsg validates msg, ensures the sender is a neighbor, delegates
// to the routing table's hello-diffusion bootstrap, refreshes last_active,
// and (unless SNRCostMetric is set) replies with a jittered HelloAck.
func (sm *StateMachine) HandleHelloMsg(iface string, msg wire.HelloMsg) {
	sm.rt.HandleHelloMsg(msg.Source, msg.Entries)
	sm.rt.UpdateNeighbor(msg.Source)

	if sm.cfg.SNRCostMetric {
		return
	}
	ack := wire.HelloAck{Source: address.Zero, HelloSentAt: msg.SentAt}
	buf, err := wire.Encode(wire.TypeHelloAck, 0, ack)
	if err != nil {
		sm.sink.AntDrop("hello_ack", trace.ReasonMalformed, msg.Source, 0)
		return
	}
	sm.sendAfter(sm.unicastJitter(), iface, msg.Source, buf)
}

// HandleHelloAck folds the round-trip sample into the sender's avr_T_send.
func (sm *StateMachine) HandleHelloAck(ack wire.HelloAck, sender address.Address) {
	sm.rt.ProcessAck(sender, ack.HelloSentAt)
}

// HandleForwardAnt implements the reactive/proactive ForwardAnt algorithm:
// dedup, TTL check, path extension, destination check, pheromone-guided
// relay, broadcast fallback, and last-resort random relay.
func (sm *StateMachine) HandleForwardAnt(iface string, self address.Address, fa wire.ForwardAnt) {
	if sm.history.Seen(fa.Source, fa.Seqno) {
		sm.sink.AntDrop("forward_ant", trace.ReasonDuplicate, fa.Source, fa.Seqno)
		return
	}
	sm.history.Add(fa.Source, fa.Seqno)

	if fa.TTL == 0 {
		sm.sink.AntDrop("forward_ant", trace.ReasonTTLExpired, fa.Source, fa.Seqno)
		return
	}

	fa.Visited = append(fa.Visited, self)
	fa.TTL--

	// Blackhole mode: answer as if this node were the destination, luring
	// traffic here instead of relaying the ant onward. The data itself is
	// dropped later, at RouteInput.
	if sm.ShouldBlackhole(fa.Destination) {
		sm.replyBackwardAnt(iface, fa)
		return
	}

	if fa.Destination == self {
		sm.replyBackwardAnt(iface, fa)
		return
	}

	beta := sm.cfg.ConsBeta
	if fa.Proactive {
		beta = sm.cfg.ProgBeta
	}
	if nb, ok := sm.rt.SelectRoute(fa.Destination, beta, fa.Proactive); ok {
		sm.unicastForwardAnt(iface, nb, fa)
		return
	}

	if fa.BroadcastBudget > 0 && sm.rt.IsBroadcastAllowed(fa.Destination) {
		fa.BroadcastBudget--
		sm.rt.NoBroadcast(fa.Destination, sm.cfg.NoBroadcast.D().Nanoseconds())
		sm.broadcastForwardAnt(fa)
		return
	}

	if nb, ok := sm.rt.SelectRandomRoute(); ok {
		sm.unicastForwardAnt(iface, nb, fa)
		return
	}

	sm.sink.AntDrop("forward_ant", trace.ReasonNoRoute, fa.Source, fa.Seqno)
}

func (sm *StateMachine) unicastForwardAnt(iface string, nb address.Address, fa wire.ForwardAnt) {
	typ := wire.TypeForwardAnt
	if fa.Proactive {
		typ = wire.TypeProactiveForwardAnt
	}
	buf, err := wire.Encode(typ, fa.TTL, fa)
	if err != nil {
		sm.sink.AntDrop("forward_ant", trace.ReasonMalformed, fa.Source, fa.Seqno)
		return
	}
	sm.sendAfter(sm.unicastJitter(), iface, nb, buf)
}

func (sm *StateMachine) broadcastForwardAnt(fa wire.ForwardAnt) {
	buf, err := wire.Encode(wire.TypeForwardAnt, fa.TTL, fa)
	if err != nil {
		sm.sink.AntDrop("forward_ant", trace.ReasonMalformed, fa.Source, fa.Seqno)
		return
	}
	for _, iface := range sm.h.Interfaces() {
		ifaceCopy := iface
		sm.sendAfter(sm.broadcastJitter(), ifaceCopy, address.Zero, buf)
	}
	if fa.Proactive {
		sm.sink.ProactiveAntSent(fa.Destination)
	}
}

// replyBackwardAnt converts a ForwardAnt into a BackwardAnt as if this node
// were fa.Destination, reversing the visited list and assigning a fresh
// seqno, and unicasts it to the previous hop. Called both when this node
// genuinely is the destination and, under blackhole mode, when it is
// impersonating one.
func (sm *StateMachine) replyBackwardAnt(iface string, fa wire.ForwardAnt) {
	// fa.Visited includes this node as its last entry; the backward path
	// excludes it, since the backward ant only needs to retrace the relays
	// between here and the origin.
	path := fa.Visited[:len(fa.Visited)-1]
	if len(path) == 0 {
		sm.sink.AntDrop("forward_ant", trace.ReasonMalformed, fa.Source, fa.Seqno)
		return
	}
	reversed := make([]address.Address, len(path))
	for i, a := range path {
		reversed[len(path)-1-i] = a
	}
	ba := wire.BackwardAnt{
		Source:      fa.Source,
		Destination: fa.Destination,
		Seqno:       sm.freshSeqno(),
		Visited:     reversed,
		Hops:        0,
		MaxHops:     uint32(len(reversed)),
	}
	prevHop := reversed[0]
	buf, err := wire.Encode(wire.TypeBackwardAnt, 0, ba)
	if err != nil {
		sm.sink.AntDrop("backward_ant", trace.ReasonMalformed, ba.Source, ba.Seqno)
		return
	}
	sm.sendAfter(sm.unicastJitter(), iface, prevHop, buf)
}

// HandleBackwardAnt implements pheromone/hop reinforcement at each hop and
// either flushes the packet cache (at the origin) or forwards the ant
// further back along its reverse path.
func (sm *StateMachine) HandleBackwardAnt(iface string, self, arrivingFrom address.Address, ba wire.BackwardAnt) {
	if sm.history.Seen(ba.Source, ba.Seqno) {
		sm.sink.AntDrop("backward_ant", trace.ReasonDuplicate, ba.Source, ba.Seqno)
		return
	}
	sm.history.Add(ba.Source, ba.Seqno)

	tInd := sm.rt.TSendEstimate(arrivingFrom)
	accumulated := ba.AccumulatedT + int64(tInd)
	hops := ba.Hops + 1

	tID := ((float64(accumulated) / 1e6) + float64(hops)*float64(sm.cfg.THop.D().Milliseconds())) / 2
	if tID <= 0 {
		tID = 1
	}
	reinforcement := 1.0 / tID

	// The neighbor reinforced is the one this ant just arrived from, not
	// ba.Source (the original forward-ant's origin, usually several hops
	// away); grounded on the original's ProcessBackwardAnt, which keys the
	// pheromone update by (dst, nb) where nb is the arriving interface's
	// neighbor, not the ant's source field.
	sm.rt.UpdatePheromone(ba.Destination, arrivingFrom, reinforcement, false)
	sm.rt.UpdateHopCount(ba.Destination, arrivingFrom, float64(hops))

	if hops >= ba.MaxHops {
		sm.flushCache(ba.Destination)
		return
	}

	ba.AccumulatedT = accumulated
	ba.Hops = hops
	nextHop := ba.Visited[hops]
	buf, err := wire.Encode(wire.TypeBackwardAnt, 0, ba)
	if err != nil {
		sm.sink.AntDrop("backward_ant", trace.ReasonMalformed, ba.Source, ba.Seqno)
		return
	}
	sm.sendAfter(sm.unicastJitter(), iface, nextHop, buf)
}

func (sm *StateMachine) flushCache(dst address.Address) {
	for sm.cache.HasEntries(dst) {
		fresh, e, ok := sm.cache.PopEntry(dst)
		if !ok {
			return
		}
		if !fresh {
			sm.sink.DataDrop(dst, trace.DataReasonCacheFull)
			continue
		}
		nb, ok := sm.rt.SelectRoute(dst, sm.cfg.ConsBeta, false)
		if !ok {
			if e.OnError != nil {
				e.OnError(e.Packet, e.Header, string(trace.DataReasonNoRouteAfterBudget))
			}
			sm.sink.DataDrop(dst, trace.DataReasonNoRouteAfterBudget)
			continue
		}
		if e.Forward != nil {
			e.Forward(nb, e.Packet, e.Header)
		}
		if sm.ledger != nil {
			sm.ledger.RecordDelivered(dst)
		}
	}
}

// HandleLinkFailureMsg delegates to the routing table and, if the response
// carries any updates, broadcasts it after a jittered delay.
func (sm *StateMachine) HandleLinkFailureMsg(origin address.Address, msg wire.LinkFailureMsg) {
	response := sm.rt.ProcessLinkFailureMsg(origin, msg.Updates)
	if len(response) == 0 {
		return
	}
	out := wire.LinkFailureMsg{Source: address.Zero, Updates: response}
	buf, err := wire.Encode(wire.TypeLinkFailureMsg, 0, out)
	if err != nil {
		return
	}
	for _, iface := range sm.h.Interfaces() {
		ifaceCopy := iface
		sm.sendAfter(sm.broadcastJitter(), ifaceCopy, address.Zero, buf)
	}
	for _, u := range response {
		sm.sink.LinkFailurePropagated(u.Destination)
	}
}

// HandleNeighborTimeout is called when the routing table's periodic sweep
// (or a MAC-layer TX-error) reports lostN as expired; it builds and
// broadcasts the resulting LinkFailureMsg.
func (sm *StateMachine) HandleNeighborTimeout(lostN address.Address) {
	updates := sm.rt.ProcessNeighborTimeout(lostN)
	sm.sink.NeighborExpired(lostN)
	if len(updates) == 0 {
		return
	}
	msg := wire.LinkFailureMsg{Source: address.Zero, Updates: updates}
	buf, err := wire.Encode(wire.TypeLinkFailureMsg, 0, msg)
	if err != nil {
		return
	}
	for _, iface := range sm.h.Interfaces() {
		ifaceCopy := iface
		sm.sendAfter(sm.broadcastJitter(), ifaceCopy, address.Zero, buf)
	}
}

// ShouldBlackhole reports whether, under config.Blackhole, this forwarded
// datagram toward dst should be silently dropped instead of relayed.
func (sm *StateMachine) ShouldBlackhole(dst address.Address) bool {
	if !sm.cfg.Blackhole {
		return false
	}
	return sm.h.RandUniformF64() < sm.cfg.BlackholeAmount
}
