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
	"anthocnet/address"
	"anthocnet/config"
	"anthocnet/facade"
	"anthocnet/trace"
)

// dataPort is an arbitrary source port distinct from the protocol's own
// control traffic, so RouteOutput's session-registration logic treats data
// requests as ordinary application traffic.
const dataPort = 4242

// AntHocNetStrategy wires a real facade.ProtocolFacade into each node, so a
// scenario run exercises the full pheromone/ant/hello machinery rather than
// a stand-in.
type AntHocNetStrategy struct {
	cfg  config.Config
	sink trace.Sink
}

// NewAntHocNetStrategy builds a strategy sharing one config across every
// node it creates. sink may be nil.
func NewAntHocNetStrategy(cfg config.Config, sink trace.Sink) *AntHocNetStrategy {
	return &AntHocNetStrategy{cfg: cfg, sink: sink}
}

func (s *AntHocNetStrategy) Name() string { return "AntHocNet" }

func (s *AntHocNetStrategy) NewNode(net *Network, self address.Address) NodeAgent {
	a := &antHocNetAgent{self: self, net: net}
	h := net.AddNode(self, a.recv)
	a.pf = facade.New(s.cfg, self, h, s.sink, 0)
	a.h = h
	return a
}

type antHocNetAgent struct {
	self address.Address
	net  *Network
	pf   *facade.ProtocolFacade
	h    *nodeHost
}

// SendData originates a datagram toward dst through the facade's RouteOutput
// entry point, exactly as a real IP stack would.
func (a *antHocNetAgent) SendData(dst address.Address, done func(delivered bool, hops int)) {
	id := a.net.registerRequest(done)
	env := dataEnvelope{Origin: a.self, Dest: dst, ReqID: id, Hops: 0}
	pkt := encodeData(env)

	hdr := facade.DataHeader{Destination: dst, SrcPort: dataPort}
	route := a.pf.RouteOutput(pkt, nil, hdr, func(p, h []byte, reason string) {
		a.net.completeRequest(id, false, 0)
	})
	if route.Loopback() {
		// RouteOutput already cached the datagram and kicked off discovery;
		// deliver it back through RouteInput so it lands in that cache,
		// exactly as a real loopback redelivery would.
		a.deliverLoopback(pkt)
		return
	}
	a.forward(route, pkt)
}

func (a *antHocNetAgent) deliverLoopback(pkt []byte) {
	env, _ := decodeData(pkt)
	hdr := facade.DataHeader{Destination: env.Dest, SrcPort: dataPort}
	a.pf.RouteInput(pkt, nil, hdr, "",
		func(route facade.Route, p, h []byte) { a.forward(route, p) },
		func(p, h []byte, iface string) { a.net.completeRequest(env.ReqID, true, env.Hops) },
		func(p, h []byte, reason string) { a.net.completeRequest(env.ReqID, false, env.Hops) },
	)
}

func (a *antHocNetAgent) forward(route facade.Route, pkt []byte) {
	env, ok := decodeData(pkt)
	if !ok {
		return
	}
	env.Hops++
	_ = a.h.Send(route.Iface, route.Gateway, encodeData(env))
}

// recv is this node's single Network dispatch point: a data envelope is
// handled here directly; anything else is a control datagram, handed to
// the facade.
func (a *antHocNetAgent) recv(iface string, from address.Address, b []byte) {
	if env, ok := decodeData(b); ok {
		a.handleData(iface, env, b)
		return
	}
	a.pf.Recv(iface, from, b)
}

func (a *antHocNetAgent) handleData(iface string, env dataEnvelope, raw []byte) {
	hdr := facade.DataHeader{Destination: env.Dest, SrcPort: dataPort}
	a.pf.RouteInput(raw, nil, hdr, iface,
		func(route facade.Route, p, h []byte) { a.forward(route, p) },
		func(p, h []byte, inIface string) { a.net.completeRequest(env.ReqID, true, env.Hops) },
		func(p, h []byte, reason string) { a.net.completeRequest(env.ReqID, false, env.Hops) },
	)
}
