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

// Package timerloop drives the three periodic ticks the routing core needs:
// hello-message broadcast, proactive-ant emission for active sessions, and
// the neighbor/destination expiry sweep. Each tick reschedules itself
// through host.Host.ScheduleAfter rather than a real time.Ticker, so the
// in-memory simulator can drive the same code over a virtual clock.
package timerloop

import (
	"gopkg.in/op/go-logging.v1"

	"anthocnet/address"
	"anthocnet/antsm"
	"anthocnet/config"
	"anthocnet/history"
	"anthocnet/host"
	"anthocnet/routing"
	"anthocnet/trace"
	"anthocnet/wire"
)

// TimerLoop owns the self-rescheduling goroutine-free ticks for one
// protocol instance. Start must be called once; the loop runs until the
// host is torn down (there is no explicit Stop, matching the protocol's
// own lifetime: a node's timers live as long as the node does).
type TimerLoop struct {
	cfg     config.Config
	rt      *routing.RoutingTable
	sm      *antsm.StateMachine
	history *history.SeenHistory
	h       host.Host
	self    address.Address
	sink    trace.Sink
	log     *logging.Logger
}

// New returns a TimerLoop for self, wired to rt/sm/h/sh/sink. log may be
// nil, in which case ticks are silent.
func New(cfg config.Config, rt *routing.RoutingTable, sm *antsm.StateMachine, sh *history.SeenHistory, h host.Host, self address.Address, sink trace.Sink, log *logging.Logger) *TimerLoop {
	if sink == nil {
		sink = trace.NopSink{}
	}
	return &TimerLoop{cfg: cfg, rt: rt, sm: sm, history: sh, h: h, self: self, sink: sink, log: log}
}

// Start schedules the first occurrence of all three ticks.
func (t *TimerLoop) Start() {
	t.h.ScheduleAfter(t.cfg.HelloInterval.D(), t.helloTick)
	t.h.ScheduleAfter(t.cfg.PrAntInterval.D(), t.proactiveAntTick)
	t.h.ScheduleAfter(t.cfg.NbExpire.D(), t.expiryTick)
}

func (t *TimerLoop) helloTick() {
	defer t.h.ScheduleAfter(t.cfg.HelloInterval.D(), t.helloTick)

	entries := t.rt.ConstructHelloMsg(t.cfg.HelloDiffusionCount)
	msg := wire.HelloMsg{Source: t.self, Entries: entries, SentAt: t.h.Now().UnixNano()}
	buf, err := wire.Encode(wire.TypeHelloMsg, 0, msg)
	if err != nil {
		t.logf("hello encode failed: %v", err)
		return
	}
	for _, iface := range t.h.Interfaces() {
		if err := t.h.Send(iface, address.Zero, buf); err != nil {
			t.logf("hello send on %s failed: %v", iface, err)
			continue
		}
		t.sink.HelloSent(iface)
	}
}

// proactiveAntTick emits one proactive ForwardAnt per active session, the
// mechanism that keeps pheromone fresh toward destinations under ongoing
// traffic without waiting for a route to go stale first.
func (t *TimerLoop) proactiveAntTick() {
	defer t.h.ScheduleAfter(t.cfg.PrAntInterval.D(), t.proactiveAntTick)

	for _, dst := range t.rt.ActiveSessions() {
		fa := wire.ForwardAnt{
			Source:          t.self,
			Destination:     dst,
			TTL:             uint8(t.cfg.InitialTTL),
			Seqno:           uint64(t.h.RandUniformInt(1, 1<<30)),
			BroadcastBudget: uint8(t.cfg.ProactiveBcastCount),
			Proactive:       true,
		}
		// Visited is left empty: HandleForwardAnt appends self as the first
		// hop, the same path-construction convention a relayed ant goes
		// through, so replyBackwardAnt's reversed path still ends at self.
		t.sm.HandleForwardAnt("", t.self, fa)
	}
}

func (t *TimerLoop) expiryTick() {
	defer t.h.ScheduleAfter(t.cfg.NbExpire.D(), t.expiryTick)

	for _, lost := range t.rt.Update() {
		t.sm.HandleNeighborTimeout(lost)
	}
	if t.history != nil {
		t.history.Sweep()
	}
}

func (t *TimerLoop) logf(format string, args ...interface{}) {
	if t.log == nil {
		return
	}
	t.log.Warningf(format, args...)
}
