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

// Package facade ties the IP stack to the routing core through two entry
// points, RouteOutput and RouteInput. ProtocolFacade is the only type in
// this module that owns every subsystem instance (RoutingTable, PacketCache,
// SeenHistory, AntStateMachine, TimerLoop) for one node; nothing outside it
// reaches into those subsystems directly.
package facade

import (
	"time"

	"gopkg.in/op/go-logging.v1"

	"anthocnet/address"
	"anthocnet/antsm"
	"anthocnet/cache"
	"anthocnet/config"
	"anthocnet/history"
	"anthocnet/host"
	"anthocnet/routing"
	"anthocnet/timerloop"
	"anthocnet/trace"
	"anthocnet/wire"
)

var log = logging.MustGetLogger("anthocnet/facade")

// DataHeader carries the fields RouteOutput/RouteInput need from a user
// datagram's IP header: its destination and the source port, used only to
// distinguish control traffic (this protocol's own port) from ordinary
// application traffic that must be routed.
type DataHeader struct {
	Destination address.Address
	SrcPort     uint16
}

// Route is what RouteOutput hands back to the IP stack: the next-hop
// gateway and the outbound interface to send on.
type Route struct {
	Gateway address.Address
	Iface   string
}

// Loopback reports whether r designates the loopback route (no gateway was
// found; the stack should deliver the packet back locally so it can be
// cached pending route discovery).
func (r Route) Loopback() bool { return r.Gateway.IsZero() && r.Iface == "" }

// UnicastForwardFunc delivers pkt/hdr to route's gateway once resolved.
type UnicastForwardFunc func(route Route, pkt, hdr []byte)

// LocalDeliverFunc hands pkt/hdr to the local IP stack; it has reached its
// destination.
type LocalDeliverFunc func(pkt, hdr []byte, iface string)

// ErrorFunc reports that pkt/hdr could not be delivered, with a short
// reason string.
type ErrorFunc func(pkt, hdr []byte, reason string)

// ProtocolFacade is the exclusive owner of one node's routing core. Every
// subsystem it wires together is private; RouteOutput/RouteInput/Recv are
// the only operations the host IP stack and the socket layer call.
type ProtocolFacade struct {
	cfg     config.Config
	self    address.Address
	rt      *routing.RoutingTable
	cache   *cache.PacketCache
	history *history.SeenHistory
	sm      *antsm.StateMachine
	loop    *timerloop.TimerLoop
	h       host.Host
	sink    trace.Sink
	ledger  *antsm.ExpectationLedger

	controlPort uint16
}

// New builds a ProtocolFacade for self and starts its TimerLoop. sink may
// be nil (defaults to a no-op sink).
func New(cfg config.Config, self address.Address, h host.Host, sink trace.Sink, controlPort uint16) *ProtocolFacade {
	if sink == nil {
		sink = trace.NopSink{}
	}
	rt := routing.New(cfg, func() int64 { return h.Now().UnixNano() }, h.RandUniformF64, h.RandUniformInt)
	sh := history.New(cfg.SeenHistoryCapacity, int64(cfg.SeenHistoryTTL), hostClock{h})
	pc := cache.New(cfg.PacketCacheCapacityPerDst, int64(cfg.DcacheExpire), hostClock{h})

	var ledger *antsm.ExpectationLedger
	if cfg.FuzzyMode {
		ledger = antsm.NewExpectationLedger()
	}
	sm := antsm.New(cfg, rt, pc, sh, h, sink, ledger)
	loop := timerloop.New(cfg, rt, sm, sh, h, self, sink, log)

	pf := &ProtocolFacade{
		cfg: cfg, self: self, rt: rt, cache: pc, history: sh,
		sm: sm, loop: loop, h: h, sink: sink, ledger: ledger,
		controlPort: controlPort,
	}
	loop.Start()
	return pf
}

// hostClock adapts host.Host.Now to clock.Clock, since history/cache take
// a clock.Clock while Host is a broader capability interface.
type hostClock struct{ h host.Host }

func (c hostClock) Now() time.Time { return c.h.Now() }

// RouteOutput resolves a route for a locally-originated datagram toward
// hdr.Destination. A non-control-port datagram refreshes the destination's
// active-session bookkeeping, keeping proactive ants flowing toward it.
// When no route exists yet, the datagram is cached and a reactive forward-
// ant is emitted; the caller receives the loopback route so the IP stack
// redelivers the packet to RouteInput, where it lands in the cache.
func (pf *ProtocolFacade) RouteOutput(pkt, hdr []byte, dh DataHeader, onError ErrorFunc) Route {
	if dh.SrcPort != pf.controlPort {
		pf.rt.RegisterSession(dh.Destination)
	}

	if nb, ok := pf.rt.SelectRoute(dh.Destination, pf.cfg.ConsBeta, false); ok {
		return Route{Gateway: nb, Iface: pf.firstIface()}
	}

	pf.cacheAndDiscover(dh.Destination, pkt, hdr, onError, nil)
	return Route{}
}

// RouteInput handles a datagram received on in_iface. dst==self delivers
// locally; otherwise it tries to forward, falling back to caching (for
// traffic this node itself originated via loopback) or to propagating a
// LinkFailureMsg (for transit traffic whose route just vanished).
func (pf *ProtocolFacade) RouteInput(pkt, hdr []byte, dh DataHeader, inIface string, ucb UnicastForwardFunc, lcb LocalDeliverFunc, ecb ErrorFunc) bool {
	if dh.Destination == pf.self {
		lcb(pkt, hdr, inIface)
		return true
	}

	if pf.ShouldBlackhole(dh.Destination) {
		pf.sink.DataDrop(dh.Destination, trace.DataReasonBlackhole)
		if ecb != nil {
			ecb(pkt, hdr, string(trace.DataReasonBlackhole))
		}
		return false
	}

	if nb, ok := pf.rt.SelectRoute(dh.Destination, pf.cfg.ConsBeta, false); ok {
		ucb(Route{Gateway: nb, Iface: inIface}, pkt, hdr)
		return true
	}

	if inIface == "" {
		// Looped-back local origination: cache pending discovery, already
		// underway from RouteOutput.
		pf.cache.Cache(dh.Destination, cache.Entry{
			Packet: pkt, Header: hdr, InIface: inIface,
			Forward: func(gateway address.Address, p, hdr []byte) { ucb(Route{Gateway: gateway, Iface: pf.firstIface()}, p, hdr) },
			OnError: ecb,
		})
		return true
	}

	// Transit traffic whose route has just disappeared: tell upstream
	// neighbors so they stop sending it this way.
	msg := wire.LinkFailureMsg{
		Source:  pf.self,
		Updates: []wire.LinkFailureUpdate{{Destination: dh.Destination, Status: wire.StatusOnlyValue, NewPheromone: 0}},
	}
	buf, err := wire.Encode(wire.TypeLinkFailureMsg, 0, msg)
	if err == nil {
		for _, iface := range pf.h.Interfaces() {
			_ = pf.h.Send(iface, address.Zero, buf)
		}
	}
	pf.sink.DataDrop(dh.Destination, trace.DataReasonNoRouteAfterBudget)
	if ecb != nil {
		ecb(pkt, hdr, string(trace.DataReasonNoRouteAfterBudget))
	}
	return false
}

func (pf *ProtocolFacade) cacheAndDiscover(dst address.Address, pkt, hdr []byte, onError ErrorFunc, forward UnicastForwardFunc) {
	if forward == nil {
		forward = func(route Route, p, h []byte) { _ = route; _ = p; _ = h }
	}
	pf.cache.Cache(dst, cache.Entry{
		Packet: pkt, Header: hdr,
		Forward: func(gateway address.Address, p, h []byte) { forward(Route{Gateway: gateway, Iface: pf.firstIface()}, p, h) },
		OnError: onError,
	})

	fa := wire.ForwardAnt{
		Source:          pf.self,
		Destination:     dst,
		TTL:             uint8(pf.cfg.InitialTTL),
		Seqno:           uint64(pf.h.RandUniformInt(1, 1<<30)),
		BroadcastBudget: uint8(pf.cfg.ReactiveBcastCount),
		Proactive:       false,
	}
	pf.sm.HandleForwardAnt("", pf.self, fa)
}

func (pf *ProtocolFacade) firstIface() string {
	ifaces := pf.h.Interfaces()
	if len(ifaces) == 0 {
		return ""
	}
	return ifaces[0]
}

// Recv dispatches an inbound control datagram by its wire type.
func (pf *ProtocolFacade) Recv(iface string, from address.Address, b []byte) {
	typ, _, body, err := wire.DecodeHeader(b)
	if err != nil {
		log.Debugf("malformed control packet from %s on %s: %v", from, iface, err)
		return
	}
	switch typ {
	case wire.TypeHelloMsg:
		msg, err := wire.DecodeHelloMsg(body)
		if err != nil {
			return
		}
		pf.sm.HandleHelloMsg(iface, msg)
	case wire.TypeHelloAck:
		ack, err := wire.DecodeHelloAck(body)
		if err != nil {
			return
		}
		pf.sm.HandleHelloAck(ack, from)
	case wire.TypeForwardAnt, wire.TypeProactiveForwardAnt:
		fa, err := wire.DecodeForwardAnt(body)
		if err != nil {
			return
		}
		fa.Proactive = typ == wire.TypeProactiveForwardAnt
		pf.sm.HandleForwardAnt(iface, pf.self, fa)
	case wire.TypeBackwardAnt:
		ba, err := wire.DecodeBackwardAnt(body)
		if err != nil {
			return
		}
		pf.sm.HandleBackwardAnt(iface, pf.self, from, ba)
	case wire.TypeLinkFailureMsg:
		msg, err := wire.DecodeLinkFailureMsg(body)
		if err != nil {
			return
		}
		pf.sm.HandleLinkFailureMsg(from, msg)
	default:
		log.Debugf("unknown control type %v from %s", typ, from)
	}
}

// OnTXError reports a MAC-layer transmission failure to the destination
// mac; every address it could correspond to is treated as a timed-out
// neighbor.
func (pf *ProtocolFacade) OnTXError(mac string) {
	for _, n := range pf.h.LookupIPv4ByMAC(mac) {
		if pf.rt.IsNeighbor(n) {
			pf.sm.HandleNeighborTimeout(n)
		}
	}
}

// OnMonitorRX feeds a promiscuous-mode overheard packet's SNR sample into
// the routing table under config.SNRCostMetric.
func (pf *ProtocolFacade) OnMonitorRX(from address.Address, snr float64) {
	if !pf.cfg.SNRCostMetric {
		return
	}
	pf.rt.OnMonitorRX(from, snr)
}

// ShouldBlackhole reports whether a transit datagram toward dst should be
// silently dropped under config.Blackhole.
func (pf *ProtocolFacade) ShouldBlackhole(dst address.Address) bool {
	return pf.sm.ShouldBlackhole(dst)
}

// RecordDelivered notes a successful local delivery for fuzzy-mode traffic
// audit. A no-op when config.FuzzyMode is false.
func (pf *ProtocolFacade) RecordDelivered(dst address.Address) {
	if pf.ledger != nil {
		pf.ledger.RecordDelivered(dst)
	}
}

// RecordSent notes an outbound datagram for fuzzy-mode traffic audit.
func (pf *ProtocolFacade) RecordSent(dst address.Address) {
	if pf.ledger != nil {
		pf.ledger.RecordSent(dst)
	}
}
