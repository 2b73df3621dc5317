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

// Package routing holds the pheromone routing table: neighbor and
// destination lifecycles, the pheromone matrix keyed by (destination,
// neighbor), random-proportional route selection, hello-diffusion
// bootstrapping, and link-failure propagation. A RoutingTable is owned by
// exactly one protocol instance and is not safe for concurrent use; all
// access runs on the facade's single goroutine.
package routing

import (
	"bytes"
	"math"
	"sort"

	"anthocnet/address"
	"anthocnet/config"
	"anthocnet/wire"
)

// NeighborInfo tracks one directly reachable neighbor.
type NeighborInfo struct {
	LastActive int64   // unix nanos of last proof-of-life, via host clock
	AvrTSend   float64 // EMA of per-packet transmission cost, nanoseconds
	HasTSend   bool    // false until the first process_ack sample
	LastSNR    float64
	HasSNR     bool
}

// DestinationInfo tracks one known destination, including each neighbor
// (every neighbor is also a destination of itself).
type DestinationInfo struct {
	NoBroadcastUntil int64 // unix nanos
	SessionTime      int64 // unix nanos of last local use
	SessionActive    bool
}

// PheromoneEntry is one cell of the pheromone matrix, keyed by
// (destination, neighbor).
type PheromoneEntry struct {
	Pheromone        float64
	VirtualPheromone float64
	AvrHops          float64
	HasHops          bool
}

type pheroKey struct {
	dst address.Address
	nb  address.Address
}

// RoutingTable is the pheromone routing table for one node.
type RoutingTable struct {
	cfg config.Config

	neighbors map[address.Address]*NeighborInfo
	dests     map[address.Address]*DestinationInfo
	matrix    map[pheroKey]*PheromoneEntry

	nowNanos func() int64
	randF64  func() float64
	randInt  func(lo, hi int) int
}

// New returns an empty RoutingTable. nowNanos, randF64 and randInt are the
// host-injected time and randomness sources (spec: "replace ambient
// simulator time/rand with injected capabilities").
func New(cfg config.Config, nowNanos func() int64, randF64 func() float64, randInt func(lo, hi int) int) *RoutingTable {
	return &RoutingTable{
		cfg:       cfg,
		neighbors: make(map[address.Address]*NeighborInfo),
		dests:     make(map[address.Address]*DestinationInfo),
		matrix:    make(map[pheroKey]*PheromoneEntry),
		nowNanos:  nowNanos,
		randF64:   randF64,
		randInt:   randInt,
	}
}

func (rt *RoutingTable) now() int64 { return rt.nowNanos() }

// sortedNeighbors returns the current neighbor set in a stable order, used
// anywhere iteration order is observable (selection tie-breaks, hello
// diffusion selection without replacement).
func (rt *RoutingTable) sortedNeighbors() []address.Address {
	out := make([]address.Address, 0, len(rt.neighbors))
	for n := range rt.neighbors {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// IsNeighbor reports whether n is a currently known neighbor.
func (rt *RoutingTable) IsNeighbor(n address.Address) bool {
	_, ok := rt.neighbors[n]
	return ok
}

// IsDestination reports whether d is a currently known destination.
func (rt *RoutingTable) IsDestination(d address.Address) bool {
	_, ok := rt.dests[d]
	return ok
}

// AddNeighbor registers n as a neighbor, idempotently, also registering it
// as a destination (every neighbor is reachable in one hop).
func (rt *RoutingTable) AddNeighbor(n address.Address) {
	if _, ok := rt.neighbors[n]; ok {
		return
	}
	rt.neighbors[n] = &NeighborInfo{LastActive: 0}
	rt.AddDestination(n)
}

// RemoveNeighbor drops n, cascades removal of every pheromone entry keyed
// by n, and drops n's DestinationInfo (a neighbor is always a destination
// of itself).
func (rt *RoutingTable) RemoveNeighbor(n address.Address) {
	if _, ok := rt.neighbors[n]; !ok {
		return
	}
	delete(rt.neighbors, n)
	for k := range rt.matrix {
		if k.nb == n {
			delete(rt.matrix, k)
		}
	}
	rt.RemoveDestination(n)
}

// AddDestination registers d as a known destination, idempotently.
func (rt *RoutingTable) AddDestination(d address.Address) {
	if _, ok := rt.dests[d]; ok {
		return
	}
	rt.dests[d] = &DestinationInfo{}
}

// RemoveDestination drops d and cascades removal of every pheromone entry
// keyed by d.
func (rt *RoutingTable) RemoveDestination(d address.Address) {
	if _, ok := rt.dests[d]; !ok {
		return
	}
	delete(rt.dests, d)
	for k := range rt.matrix {
		if k.dst == d {
			delete(rt.matrix, k)
		}
	}
}

// SetPheromone writes value directly into the (d, n) cell, creating it only
// if both d and n already exist; otherwise it is a no-op.
func (rt *RoutingTable) SetPheromone(d, n address.Address, value float64, virt bool) {
	if _, ok := rt.dests[d]; !ok {
		return
	}
	if _, ok := rt.neighbors[n]; !ok {
		return
	}
	e := rt.entry(d, n)
	if virt {
		e.VirtualPheromone = value
	} else {
		e.Pheromone = value
	}
}

func (rt *RoutingTable) entry(d, n address.Address) *PheromoneEntry {
	k := pheroKey{d, n}
	e, ok := rt.matrix[k]
	if !ok {
		e = &PheromoneEntry{}
		rt.matrix[k] = e
	}
	return e
}

// GetPheromone returns the (d, n) value, or 0 when absent.
func (rt *RoutingTable) GetPheromone(d, n address.Address, virt bool) float64 {
	e, ok := rt.matrix[pheroKey{d, n}]
	if !ok {
		return 0
	}
	if virt {
		return e.VirtualPheromone
	}
	return e.Pheromone
}

// HasPheromone reports whether the (d, n) value exceeds min_pheromone.
func (rt *RoutingTable) HasPheromone(d, n address.Address, virt bool) bool {
	return rt.GetPheromone(d, n, virt) > rt.cfg.MinPheromone
}

// evaporate applies new = old - (1-alpha)*old = alpha*old.
func (rt *RoutingTable) evaporate(old float64) float64 {
	return old - (1-rt.cfg.Alpha)*old
}

// reinforce applies the EMA new = gamma*old + (1-gamma)*reinforcement. See
// DESIGN.md for why no separate additive term is carried.
func (rt *RoutingTable) reinforce(old, reinforcement float64) float64 {
	return rt.cfg.Gamma*old + (1-rt.cfg.Gamma)*reinforcement
}

// UpdatePheromone reinforces targetN's (d, targetN) cell and evaporates
// every other neighbor's (d, n) cell. If d is unknown it is added first.
func (rt *RoutingTable) UpdatePheromone(d, targetN address.Address, reinforcement float64, virt bool) {
	if _, ok := rt.neighbors[targetN]; !ok {
		return
	}
	if _, ok := rt.dests[d]; !ok {
		rt.AddDestination(d)
	}
	for n := range rt.neighbors {
		e := rt.entry(d, n)
		old := e.Pheromone
		if virt {
			old = e.VirtualPheromone
		}
		var updated float64
		if n == targetN {
			updated = rt.reinforce(old, reinforcement)
		} else {
			updated = rt.evaporate(old)
		}
		if virt {
			e.VirtualPheromone = updated
		} else {
			e.Pheromone = updated
		}
	}
}

// UpdateHopCount folds a backward-ant's hop count into the (d, n) cell's
// avr_hops EMA: h' = alpha_pheromone*h + (1-alpha_pheromone)*hops, direct
// assignment on the first sample. Creates the entry if both endpoints
// exist; no-op otherwise.
func (rt *RoutingTable) UpdateHopCount(d, n address.Address, hops float64) {
	if _, ok := rt.dests[d]; !ok {
		return
	}
	if _, ok := rt.neighbors[n]; !ok {
		return
	}
	e := rt.entry(d, n)
	if !e.HasHops {
		e.AvrHops = hops
		e.HasHops = true
		return
	}
	a := rt.cfg.AlphaPheromone
	e.AvrHops = a*e.AvrHops + (1-a)*hops
}

// Bootstrap converts an advertised/inferred pheromone ph and a local
// one-hop cost estimate u into a provisional value: 1/(1/u + ph).
func Bootstrap(ph, u float64) float64 {
	return 1.0 / (1.0/u + ph)
}

// SelectRoute performs random-proportional selection among neighbors with a
// pheromone entry for d, weighted by pow(p, beta). d itself is returned
// immediately when it is a neighbor (no selection needed).
func (rt *RoutingTable) SelectRoute(d address.Address, beta float64, virt bool) (address.Address, bool) {
	if rt.IsNeighbor(d) {
		return d, true
	}

	type weighted struct {
		nb     address.Address
		weight float64
	}
	var weights []weighted
	sum := 0.0
	for _, n := range rt.sortedNeighbors() {
		e, ok := rt.matrix[pheroKey{d, n}]
		if !ok {
			continue
		}
		p := e.Pheromone
		if virt && e.VirtualPheromone > e.Pheromone {
			p = e.VirtualPheromone
		}
		w := math.Pow(p, beta)
		weights = append(weights, weighted{n, w})
		sum += w
	}
	if sum < rt.cfg.MinPheromone {
		return address.Zero, false
	}

	u := rt.randF64()
	running := 0.0
	for _, w := range weights {
		running += w.weight / sum
		if running > u {
			return w.nb, true
		}
	}
	// Floating-point rounding can leave running just short of u; the last
	// candidate in iteration order wins the tie.
	if len(weights) > 0 {
		return weights[len(weights)-1].nb, true
	}
	return address.Zero, false
}

// SelectRandomRoute returns a uniformly random neighbor, used as a
// last-resort fallback when the pheromone path is empty.
func (rt *RoutingTable) SelectRandomRoute() (address.Address, bool) {
	nbs := rt.sortedNeighbors()
	if len(nbs) == 0 {
		return address.Zero, false
	}
	idx := rt.randInt(0, len(nbs))
	return nbs[idx], true
}

// RegisterSession marks d as having active local application traffic.
func (rt *RoutingTable) RegisterSession(d address.Address) {
	if _, ok := rt.dests[d]; !ok {
		rt.AddDestination(d)
	}
	info := rt.dests[d]
	info.SessionTime = rt.now()
	info.SessionActive = true
}

// ActiveSessions returns destinations with an active, non-expired session,
// clearing SessionActive on any that have just expired.
func (rt *RoutingTable) ActiveSessions() []address.Address {
	var out []address.Address
	now := rt.now()
	expire := rt.cfg.SessionExpire.D().Nanoseconds()
	for d, info := range rt.dests {
		if !info.SessionActive {
			continue
		}
		if now-info.SessionTime >= expire {
			info.SessionActive = false
			continue
		}
		out = append(out, d)
	}
	return out
}

// IsBroadcastAllowed reports whether a new broadcast for d may be sent now.
// It creates d on first query and returns false that first time, rate-
// limiting the initial flood.
func (rt *RoutingTable) IsBroadcastAllowed(d address.Address) bool {
	info, ok := rt.dests[d]
	if !ok {
		rt.AddDestination(d)
		info = rt.dests[d]
		info.NoBroadcastUntil = rt.now() + rt.cfg.NoBroadcast.D().Nanoseconds()
		return false
	}
	return rt.now() > info.NoBroadcastUntil
}

// NoBroadcast sets the no-broadcast cooldown for d to now+duration.
func (rt *RoutingTable) NoBroadcast(d address.Address, durationNanos int64) {
	if _, ok := rt.dests[d]; !ok {
		rt.AddDestination(d)
	}
	rt.dests[d].NoBroadcastUntil = rt.now() + durationNanos
}

// UpdateNeighbor refreshes n's last-active timestamp to now.
func (rt *RoutingTable) UpdateNeighbor(n address.Address) {
	info, ok := rt.neighbors[n]
	if !ok {
		return
	}
	info.LastActive = rt.now()
}

// ProcessAck folds a hello-ack round-trip sample into n's avr_T_send EMA:
// avr' = eta*avr + (1-eta)*delta, direct assignment on the first sample.
func (rt *RoutingTable) ProcessAck(n address.Address, lastHelloTimeNanos int64) {
	info, ok := rt.neighbors[n]
	if !ok {
		return
	}
	delta := float64(rt.now() - lastHelloTimeNanos)
	if !info.HasTSend {
		info.AvrTSend = delta
		info.HasTSend = true
		return
	}
	eta := rt.cfg.EtaValue
	info.AvrTSend = eta*info.AvrTSend + (1-eta)*delta
}

// OnMonitorRX feeds a MAC-layer SNR sample for n; used as the cost metric
// when config.SNRCostMetric is set.
func (rt *RoutingTable) OnMonitorRX(n address.Address, snr float64) {
	info, ok := rt.neighbors[n]
	if !ok {
		return
	}
	info.LastSNR = snr
	info.HasSNR = true
}

// TSendEstimate returns the current per-send cost estimate to n, in
// nanoseconds, or under SNR-cost mode an SNR-weighted cost instead. Used to
// derive T_id at hello-diffusion and ant-reinforcement call sites.
func (rt *RoutingTable) TSendEstimate(n address.Address) float64 {
	info, ok := rt.neighbors[n]
	if !ok {
		return float64(rt.cfg.THop.D().Nanoseconds())
	}
	if rt.cfg.SNRCostMetric {
		if !info.HasSNR || info.LastSNR < rt.cfg.SNRThreshold {
			return rt.cfg.BadSNRCost
		}
		return info.LastSNR
	}
	if !info.HasTSend {
		return float64(rt.cfg.THop.D().Nanoseconds())
	}
	return info.AvrTSend
}

// ConstructHelloMsg returns up to k diffusion entries. For each destination
// it takes the best of real/virtual pheromone across all neighbors, signing
// the value positive when real pheromone dominates and negative when
// virtual does; destinations with best <= min_pheromone are excluded.
func (rt *RoutingTable) ConstructHelloMsg(k int) []wire.DiffusionEntry {
	type candidate struct {
		dst   address.Address
		value float64
		sign  wire.DiffusionSign
	}
	dests := make([]address.Address, 0, len(rt.dests))
	for d := range rt.dests {
		dests = append(dests, d)
	}
	sort.Slice(dests, func(i, j int) bool { return bytes.Compare(dests[i][:], dests[j][:]) < 0 })

	var candidates []candidate
	for _, d := range dests {
		best := 0.0
		sign := wire.SignReal
		for _, n := range rt.sortedNeighbors() {
			e, ok := rt.matrix[pheroKey{d, n}]
			if !ok {
				continue
			}
			if e.Pheromone > best {
				best = e.Pheromone
				sign = wire.SignReal
			}
			if e.VirtualPheromone > best {
				best = e.VirtualPheromone
				sign = wire.SignVirtual
			}
		}
		if best > rt.cfg.MinPheromone {
			candidates = append(candidates, candidate{d, best, sign})
		}
	}

	if len(candidates) <= k {
		out := make([]wire.DiffusionEntry, len(candidates))
		for i, c := range candidates {
			out[i] = wire.DiffusionEntry{Destination: c.dst, Value: c.value, Sign: c.sign}
		}
		return out
	}

	out := make([]wire.DiffusionEntry, 0, k)
	for i := 0; i < k && len(candidates) > 0; i++ {
		idx := rt.randInt(0, len(candidates))
		c := candidates[idx]
		out = append(out, wire.DiffusionEntry{Destination: c.dst, Value: c.value, Sign: c.sign})
		candidates = append(candidates[:idx], candidates[idx+1:]...)
	}
	return out
}

// HandleHelloMsg registers sender as a neighbor if new, then bootstraps the
// virtual pheromone for every advertised destination from sender. The
// real-pheromone bump for negatively-signed entries named as a future
// extension in the protocol's own design notes is not implemented; see
// DESIGN.md.
func (rt *RoutingTable) HandleHelloMsg(sender address.Address, entries []wire.DiffusionEntry) {
	if !rt.IsNeighbor(sender) {
		rt.AddNeighbor(sender)
	}
	tID := rt.TSendEstimate(sender)
	for _, e := range entries {
		if !rt.IsDestination(e.Destination) {
			rt.AddDestination(e.Destination)
		}
		signedValue := math.Abs(e.Value)
		newPhero := Bootstrap(signedValue, tID)
		// TODO(open question): whether a negatively-signed entry should
		// also bump the real pheromone is left unresolved by the original
		// protocol; only virtual_pheromone is ever updated here.
		rt.UpdatePheromone(e.Destination, sender, newPhero, true)
	}
}

// IsOnly scans every neighbor other than excludeN for a usable real
// pheromone entry to d, returning whether an alternative exists and the
// best pheromone found among alternatives.
func (rt *RoutingTable) IsOnly(d, excludeN address.Address) (hasAlt bool, bestAlt float64) {
	for n := range rt.neighbors {
		if n == excludeN {
			continue
		}
		e, ok := rt.matrix[pheroKey{d, n}]
		if !ok {
			continue
		}
		if e.Pheromone > rt.cfg.MinPheromone {
			hasAlt = true
			if e.Pheromone > bestAlt {
				bestAlt = e.Pheromone
			}
		}
	}
	return hasAlt, bestAlt
}

// ProcessNeighborTimeout appends one update per destination reachable via
// lostN to msg, then removes lostN (cascading).
func (rt *RoutingTable) ProcessNeighborTimeout(lostN address.Address) []wire.LinkFailureUpdate {
	var updates []wire.LinkFailureUpdate
	for d := range rt.dests {
		e, ok := rt.matrix[pheroKey{d, lostN}]
		if !ok {
			continue
		}
		broken := e.Pheromone
		hasAlt, bestAlt := rt.IsOnly(d, lostN)
		switch {
		case !hasAlt:
			updates = append(updates, wire.LinkFailureUpdate{Destination: d, Status: wire.StatusOnlyValue, NewPheromone: 0})
		case bestAlt < broken:
			updates = append(updates, wire.LinkFailureUpdate{Destination: d, Status: wire.StatusNewBestValue, NewPheromone: bestAlt})
		default:
			updates = append(updates, wire.LinkFailureUpdate{Destination: d, Status: wire.StatusValue, NewPheromone: 0})
		}
	}
	rt.RemoveNeighbor(lostN)
	return updates
}

// ProcessLinkFailureMsg applies every update in msg, advertised by origin,
// and returns the response updates (possibly empty) to propagate upstream.
// Updates about a destination we have never heard of are ignored; origin
// must be a known neighbor.
func (rt *RoutingTable) ProcessLinkFailureMsg(origin address.Address, updates []wire.LinkFailureUpdate) []wire.LinkFailureUpdate {
	if !rt.IsNeighbor(origin) {
		return nil
	}
	var response []wire.LinkFailureUpdate
	for _, u := range updates {
		if !rt.IsDestination(u.Destination) {
			continue
		}
		switch u.Status {
		case wire.StatusValue:
			// no state change
		case wire.StatusOnlyValue:
			if !rt.HasPheromone(u.Destination, origin, false) {
				continue
			}
			hasAlt, bestAlt := rt.IsOnly(u.Destination, origin)
			if !hasAlt {
				response = append(response, wire.LinkFailureUpdate{Destination: u.Destination, Status: wire.StatusOnlyValue, NewPheromone: 0})
			} else if rt.GetPheromone(u.Destination, origin, false) > bestAlt {
				response = append(response, wire.LinkFailureUpdate{Destination: u.Destination, Status: wire.StatusNewBestValue, NewPheromone: bestAlt})
			}
			delete(rt.matrix, pheroKey{u.Destination, origin})
		case wire.StatusNewBestValue:
			_, oldBest := rt.IsOnly(u.Destination, address.Zero)
			wasBest := rt.GetPheromone(u.Destination, origin, false) >= oldBest
			tID := rt.TSendEstimate(origin)
			bootstrapped := Bootstrap(u.NewPheromone, tID)
			rt.SetPheromone(u.Destination, origin, bootstrapped, true)
			// TODO(open question): the original leaves unclear what should
			// happen when the updated pheromone was not previously the
			// best; per the protocol's own stated contract we never
			// propagate in that case, to avoid message storms.
			if wasBest && bootstrapped > oldBest {
				response = append(response, wire.LinkFailureUpdate{Destination: u.Destination, Status: wire.StatusNewBestValue, NewPheromone: bootstrapped})
			}
		}
	}
	return response
}

// Update removes expired destinations outright and returns the neighbors
// whose nb_expire window has elapsed. Those neighbors stay in the table so
// the caller can build their link-failure updates with
// ProcessNeighborTimeout, which then removes each one.
func (rt *RoutingTable) Update() (expiredNeighbors []address.Address) {
	now := rt.now()
	nbExpire := rt.cfg.NbExpire.D().Nanoseconds()
	for n, info := range rt.neighbors {
		if now-info.LastActive > nbExpire {
			expiredNeighbors = append(expiredNeighbors, n)
		}
	}

	dstExpire := rt.cfg.DstExpire.D().Nanoseconds()
	for d, info := range rt.dests {
		if rt.IsNeighbor(d) {
			continue
		}
		sessionExpired := info.SessionTime == 0 || now-info.SessionTime > dstExpire
		if sessionExpired && !rt.hasAnyPheromone(d) {
			rt.RemoveDestination(d)
		}
	}

	return expiredNeighbors
}

// hasAnyPheromone reports whether d still has at least one pheromone entry
// via some neighbor.
func (rt *RoutingTable) hasAnyPheromone(d address.Address) bool {
	for k := range rt.matrix {
		if k.dst == d {
			return true
		}
	}
	return false
}
