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

package antsm

import (
	"testing"
	"time"

	"anthocnet/address"
	"anthocnet/cache"
	"anthocnet/clock"
	"anthocnet/config"
	"anthocnet/history"
	"anthocnet/routing"
	"anthocnet/trace"
	"anthocnet/wire"
)

type sentMsg struct {
	iface string
	to    address.Address
	typ   wire.TypeHeader
	ttl   uint8
}

type fakeHost struct {
	sent       []sentMsg
	ifaces     []string
	now        time.Time
	f64        float64
	macLookups map[string][]address.Address
}

func newFakeHost() *fakeHost {
	return &fakeHost{ifaces: []string{"wlan0"}, now: time.Unix(1000, 0)}
}

func (h *fakeHost) Send(iface string, to address.Address, b []byte) error {
	typ, ttl, _, err := wire.DecodeHeader(b)
	if err != nil {
		return err
	}
	h.sent = append(h.sent, sentMsg{iface: iface, to: to, typ: typ, ttl: ttl})
	return nil
}

func (h *fakeHost) ScheduleAfter(d time.Duration, fn func()) { fn() }
func (h *fakeHost) Now() time.Time                           { return h.now }
func (h *fakeHost) RandUniformF64() float64                  { return h.f64 }
func (h *fakeHost) RandUniformInt(lo, hi int) int             { return lo }
func (h *fakeHost) LookupIPv4ByMAC(mac string) []address.Address {
	return h.macLookups[mac]
}
func (h *fakeHost) Interfaces() []string { return h.ifaces }

type spySink struct {
	trace.NopSink
	drops         []trace.AntDropReason
	proactiveAnts []address.Address
}

func (s *spySink) AntDrop(kind string, reason trace.AntDropReason, src address.Address, seqno uint64) {
	s.drops = append(s.drops, reason)
}

func (s *spySink) ProactiveAntSent(dst address.Address) {
	s.proactiveAnts = append(s.proactiveAnts, dst)
}

func testCfg() config.Config {
	cfg := config.Default()
	cfg.Alpha = 0.9
	cfg.Gamma = 0.7
	cfg.ConsBeta = 2
	cfg.ProgBeta = 1
	cfg.InitialTTL = 8
	cfg.MinPheromone = 0.01
	cfg.NoBroadcast = config.Duration(5 * time.Second)
	cfg.THop = config.Duration(10 * time.Millisecond)
	return cfg
}

func newSM(t *testing.T, cfg config.Config, h *fakeHost, sink trace.Sink) (*StateMachine, *routing.RoutingTable) {
	t.Helper()
	clk := clock.NewVirtual(h.now)
	rt := routing.New(cfg, func() int64 { return clk.Now().UnixNano() }, h.RandUniformF64, h.RandUniformInt)
	sh := history.New(cfg.SeenHistoryCapacity, int64(cfg.SeenHistoryTTL), clk)
	pc := cache.New(cfg.PacketCacheCapacityPerDst, int64(cfg.DcacheExpire), clk)
	var ledger *ExpectationLedger
	if cfg.FuzzyMode {
		ledger = NewExpectationLedger()
	}
	return New(cfg, rt, pc, sh, h, sink, ledger), rt
}

func TestHandleForwardAntDuplicateIsDropped(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, _ := newSM(t, testCfg(), h, sink)
	self := address.FromUint32(1)
	src := address.FromUint32(2)
	dst := address.FromUint32(3)
	fa := wire.ForwardAnt{Source: src, Destination: dst, TTL: 5, Seqno: 7}

	sm.HandleForwardAnt("wlan0", self, fa)
	sm.HandleForwardAnt("wlan0", self, fa)

	found := false
	for _, r := range sink.drops {
		if r == trace.ReasonDuplicate {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the second identical (source, seqno) ant to be dropped as a duplicate")
	}
}

func TestHandleForwardAntExpiredTTLIsDropped(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, _ := newSM(t, testCfg(), h, sink)
	fa := wire.ForwardAnt{Source: address.FromUint32(2), Destination: address.FromUint32(3), TTL: 0, Seqno: 1}

	sm.HandleForwardAnt("wlan0", address.FromUint32(1), fa)

	if len(sink.drops) != 1 || sink.drops[0] != trace.ReasonTTLExpired {
		t.Fatalf("expected a ttl_expired drop, got %v", sink.drops)
	}
}

func TestHandleForwardAntAtDestinationSendsBackwardAnt(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, _ := newSM(t, testCfg(), h, sink)
	self := address.FromUint32(3)
	origin := address.FromUint32(1)
	relay := address.FromUint32(2)
	fa := wire.ForwardAnt{
		Source:      origin,
		Destination: self,
		TTL:         5,
		Seqno:       1,
		Visited:     []address.Address{origin, relay},
	}

	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(h.sent))
	}
	if h.sent[0].typ != wire.TypeBackwardAnt {
		t.Fatalf("expected a BackwardAnt, got type %v", h.sent[0].typ)
	}
	if h.sent[0].to != relay {
		t.Fatalf("expected the backward ant to go to the previous hop %v, got %v", relay, h.sent[0].to)
	}
}

func TestHandleForwardAntUnderBlackholeRepliesAsDestination(t *testing.T) {
	h := newFakeHost()
	h.f64 = 0.1
	cfg := testCfg()
	cfg.Blackhole = true
	cfg.BlackholeAmount = 0.5
	sink := &spySink{}
	sm, _ := newSM(t, cfg, h, sink)
	self := address.FromUint32(3)
	origin := address.FromUint32(1)
	relay := address.FromUint32(2)
	dst := address.FromUint32(99)
	fa := wire.ForwardAnt{
		Source:      origin,
		Destination: dst,
		TTL:         5,
		Seqno:       1,
		Visited:     []address.Address{origin, relay},
	}

	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(h.sent))
	}
	if h.sent[0].typ != wire.TypeBackwardAnt {
		t.Fatalf("expected a blackhole node to answer as if it were the destination, got type %v", h.sent[0].typ)
	}
	if h.sent[0].to != relay {
		t.Fatalf("expected the fake backward ant to go to the previous hop %v, got %v", relay, h.sent[0].to)
	}
}

func TestHandleForwardAntUnicastsViaSelectedRoute(t *testing.T) {
	h := newFakeHost()
	sm, rt := newSM(t, testCfg(), h, trace.NopSink{})
	self := address.FromUint32(1)
	dst := address.FromUint32(9)
	nb := address.FromUint32(2)
	rt.AddNeighbor(nb)
	rt.AddDestination(dst)
	rt.SetPheromone(dst, nb, 1.0, false)

	fa := wire.ForwardAnt{Source: address.FromUint32(5), Destination: dst, TTL: 5, Seqno: 1}
	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 1 || h.sent[0].to != nb || h.sent[0].typ != wire.TypeForwardAnt {
		t.Fatalf("expected a unicast ForwardAnt to %v, got %+v", nb, h.sent)
	}
}

func TestHandleForwardAntFallsBackToBroadcastWhenNoRoute(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, rt := newSM(t, testCfg(), h, sink)
	self := address.FromUint32(1)
	dst := address.FromUint32(9)
	// The first broadcast query for an unknown destination is rate-limited.
	rt.AddDestination(dst)

	fa := wire.ForwardAnt{Source: address.FromUint32(5), Destination: dst, TTL: 5, Seqno: 1, BroadcastBudget: 1}
	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 1 || h.sent[0].to != address.Zero {
		t.Fatalf("expected one broadcast send, got %+v", h.sent)
	}
	if len(sink.proactiveAnts) != 0 {
		t.Fatalf("expected a reactive broadcast not to count toward proactive_ant_sent_total, got %v", sink.proactiveAnts)
	}
}

func TestHandleForwardAntProactiveBroadcastReportsProactiveAntSent(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, rt := newSM(t, testCfg(), h, sink)
	self := address.FromUint32(1)
	dst := address.FromUint32(9)
	// The first broadcast query for an unknown destination is rate-limited.
	rt.AddDestination(dst)

	fa := wire.ForwardAnt{Source: address.FromUint32(5), Destination: dst, TTL: 5, Seqno: 1, BroadcastBudget: 1, Proactive: true}
	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 1 || h.sent[0].to != address.Zero {
		t.Fatalf("expected one broadcast send, got %+v", h.sent)
	}
	if len(sink.proactiveAnts) != 1 || sink.proactiveAnts[0] != dst {
		t.Fatalf("expected a proactive broadcast to report proactive_ant_sent_total for %v, got %v", dst, sink.proactiveAnts)
	}
}

func TestHandleForwardAntDropsWhenNoRouteAndNoBroadcastBudget(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, _ := newSM(t, testCfg(), h, sink)
	self := address.FromUint32(1)
	dst := address.FromUint32(9)

	fa := wire.ForwardAnt{Source: address.FromUint32(5), Destination: dst, TTL: 5, Seqno: 1, BroadcastBudget: 0}
	sm.HandleForwardAnt("wlan0", self, fa)

	if len(h.sent) != 0 {
		t.Fatalf("expected no sends when there is no route and no broadcast budget, got %+v", h.sent)
	}
	if len(sink.drops) != 1 || sink.drops[0] != trace.ReasonNoRoute {
		t.Fatalf("expected a no_route drop, got %v", sink.drops)
	}
}

func TestReplyBackwardAntExcludesDestinationFromReversedPath(t *testing.T) {
	h := newFakeHost()
	sm, _ := newSM(t, testCfg(), h, trace.NopSink{})
	origin := address.FromUint32(1)
	relay := address.FromUint32(2)
	dst := address.FromUint32(3)

	fa := wire.ForwardAnt{
		Source:      origin,
		Destination: dst,
		TTL:         5,
		Seqno:       1,
		Visited:     []address.Address{origin, relay, dst},
	}
	sm.replyBackwardAnt("wlan0", fa)

	if len(h.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(h.sent))
	}
	if h.sent[0].to != relay {
		t.Fatalf("expected the backward ant to go to relay %v (the hop before the destination), got %v", relay, h.sent[0].to)
	}
	if h.sent[0].to == dst {
		t.Fatalf("the destination must never be treated as a relay hop on its own backward ant")
	}
}

func TestHandleBackwardAntReinforcesArrivingNeighborNotOriginalSource(t *testing.T) {
	h := newFakeHost()
	sm, rt := newSM(t, testCfg(), h, trace.NopSink{})
	dst := address.FromUint32(9)
	arrivingFrom := address.FromUint32(2)
	farSource := address.FromUint32(99) // several hops away, never a registered neighbor
	rt.AddNeighbor(arrivingFrom)

	ba := wire.BackwardAnt{
		Source:      farSource,
		Destination: dst,
		Seqno:       1,
		Visited:     []address.Address{arrivingFrom},
		Hops:        0,
		MaxHops:     1,
	}
	sm.HandleBackwardAnt("wlan0", address.FromUint32(1), arrivingFrom, ba)

	if got := rt.GetPheromone(dst, arrivingFrom, false); got <= 0 {
		t.Fatalf("expected the arriving neighbor's pheromone to be reinforced, got %v", got)
	}
	if got := rt.GetPheromone(dst, farSource, false); got != 0 {
		t.Fatalf("the original ant source must never be reinforced directly, got %v", got)
	}
}

func TestHandleBackwardAntDuplicateIsDropped(t *testing.T) {
	h := newFakeHost()
	sink := &spySink{}
	sm, rt := newSM(t, testCfg(), h, sink)
	dst := address.FromUint32(9)
	nb := address.FromUint32(2)
	rt.AddNeighbor(nb)

	ba := wire.BackwardAnt{Source: address.FromUint32(5), Destination: dst, Seqno: 1, Visited: []address.Address{nb}, MaxHops: 1}
	sm.HandleBackwardAnt("wlan0", address.FromUint32(1), nb, ba)
	sm.HandleBackwardAnt("wlan0", address.FromUint32(1), nb, ba)

	found := false
	for _, r := range sink.drops {
		if r == trace.ReasonDuplicate {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the second identical backward ant to be dropped as a duplicate")
	}
}

func TestHandleBackwardAntForwardsUntilMaxHops(t *testing.T) {
	h := newFakeHost()
	sm, rt := newSM(t, testCfg(), h, trace.NopSink{})
	dst := address.FromUint32(9)
	relay1 := address.FromUint32(2)
	origin := address.FromUint32(1)
	rt.AddNeighbor(relay1)
	rt.AddNeighbor(origin)

	ba := wire.BackwardAnt{
		Source:      origin,
		Destination: dst,
		Seqno:       1,
		Visited:     []address.Address{relay1, origin},
		Hops:        0,
		MaxHops:     2,
	}
	sm.HandleBackwardAnt("wlan0", relay1, relay1, ba)

	if len(h.sent) != 1 || h.sent[0].to != origin || h.sent[0].typ != wire.TypeBackwardAnt {
		t.Fatalf("expected the ant to continue on to the origin, got %+v", h.sent)
	}
}

func TestHandleBackwardAntFlushesCacheAtFinalHop(t *testing.T) {
	h := newFakeHost()
	sm, rt := newSM(t, testCfg(), h, trace.NopSink{})
	dst := address.FromUint32(9)
	nb := address.FromUint32(2)
	rt.AddNeighbor(nb)
	rt.AddDestination(dst)
	rt.SetPheromone(dst, nb, 1.0, false)

	delivered := false
	sm.cache.Cache(dst, cache.Entry{
		Packet:  []byte("payload"),
		Header:  []byte("hdr"),
		Forward: func(gateway address.Address, pkt, hdr []byte) { delivered = true },
	})

	ba := wire.BackwardAnt{Source: address.FromUint32(1), Destination: dst, Seqno: 1, Visited: []address.Address{nb}, MaxHops: 1}
	sm.HandleBackwardAnt("wlan0", address.FromUint32(1), nb, ba)

	if !delivered {
		t.Fatalf("expected the cached datagram to be flushed once the backward ant reaches the origin")
	}
}

func TestHandleHelloMsgRepliesWithHelloAckByDefault(t *testing.T) {
	h := newFakeHost()
	sm, _ := newSM(t, testCfg(), h, trace.NopSink{})
	sender := address.FromUint32(2)

	sm.HandleHelloMsg("wlan0", wire.HelloMsg{Source: sender, SentAt: 123})

	if len(h.sent) != 1 || h.sent[0].to != sender || h.sent[0].typ != wire.TypeHelloAck {
		t.Fatalf("expected a HelloAck reply to %v, got %+v", sender, h.sent)
	}
}

func TestHandleHelloMsgSkipsAckUnderSNRCostMetric(t *testing.T) {
	h := newFakeHost()
	cfg := testCfg()
	cfg.SNRCostMetric = true
	sm, _ := newSM(t, cfg, h, trace.NopSink{})

	sm.HandleHelloMsg("wlan0", wire.HelloMsg{Source: address.FromUint32(2), SentAt: 123})

	if len(h.sent) != 0 {
		t.Fatalf("expected no HelloAck under snr_cost_metric, got %+v", h.sent)
	}
}

func TestHandleNeighborTimeoutBroadcastsLinkFailure(t *testing.T) {
	h := newFakeHost()
	sm, rt := newSM(t, testCfg(), h, trace.NopSink{})
	lost := address.FromUint32(2)
	dst := address.FromUint32(9)
	rt.AddNeighbor(lost)
	rt.AddDestination(dst)
	rt.SetPheromone(dst, lost, 1.0, false)

	sm.HandleNeighborTimeout(lost)

	if len(h.sent) != 1 || h.sent[0].typ != wire.TypeLinkFailureMsg || h.sent[0].to != address.Zero {
		t.Fatalf("expected a broadcast LinkFailureMsg, got %+v", h.sent)
	}
}

func TestShouldBlackholeDisabledByDefault(t *testing.T) {
	h := newFakeHost()
	sm, _ := newSM(t, testCfg(), h, trace.NopSink{})
	if sm.ShouldBlackhole(address.FromUint32(1)) {
		t.Fatalf("expected blackhole to be disabled by default")
	}
}

func TestShouldBlackholeUsesConfiguredAmount(t *testing.T) {
	h := newFakeHost()
	h.f64 = 0.1
	cfg := testCfg()
	cfg.Blackhole = true
	cfg.BlackholeAmount = 0.5
	sm, _ := newSM(t, cfg, h, trace.NopSink{})

	if !sm.ShouldBlackhole(address.FromUint32(1)) {
		t.Fatalf("expected a draw below the configured amount to blackhole the datagram")
	}

	h.f64 = 0.9
	if sm.ShouldBlackhole(address.FromUint32(1)) {
		t.Fatalf("expected a draw above the configured amount not to blackhole the datagram")
	}
}

func TestExpectationLedgerCounts(t *testing.T) {
	l := NewExpectationLedger()
	dst := address.FromUint32(1)
	l.RecordSent(dst)
	l.RecordSent(dst)
	l.RecordDelivered(dst)

	sent, delivered := l.Counts(dst)
	if sent != 2 || delivered != 1 {
		t.Fatalf("expected sent=2 delivered=1, got sent=%d delivered=%d", sent, delivered)
	}
}
