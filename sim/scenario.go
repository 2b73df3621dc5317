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
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"anthocnet/address"
)

// TopologyEvent changes the link between A and B at a specific point in
// virtual time, relative to the scenario's start. Use it to model mobility
// or a node failure (Up=false severs the link; the routing core discovers
// this itself via missed hellos, not via a side-channel notification).
type TopologyEvent struct {
	At time.Time
	A  address.Address
	B  address.Address
	Up bool
}

// Scenario is a full simulation definition: a fixed node set, an initial
// topology, any topology changes partway through, and a request workload.
type Scenario struct {
	Nodes       []address.Address
	Links       [][2]address.Address
	Events      []TopologyEvent
	LinkLatency time.Duration

	TotalRequests   int
	RequestInterval time.Duration
	Pick            func(rng *rand.Rand, nodes []address.Address) (src, dst address.Address)

	// Settle is how long the network runs before the first request, letting
	// hello diffusion establish initial neighbor state.
	Settle time.Duration
	// Drain is how long the network keeps running after the last request is
	// issued, so in-flight ants/data have a chance to resolve before
	// FailAllPending gives up on whatever is still outstanding.
	Drain time.Duration

	Seed int64
}

// Results aggregates one strategy's run over a Scenario.
type Results struct {
	Strategy  string
	Total     int
	Delivered int
	Failed    int
	MeanHops  float64
	P95Hops   float64
}

// RunScenario runs sc against one strategy's fresh network and returns
// aggregated delivery/hop metrics.
func RunScenario(sc Scenario, strat Strategy) Results {
	net := NewNetwork(time.Unix(0, 0), sc.Seed, sc.LinkLatency)
	agents := make(map[address.Address]NodeAgent, len(sc.Nodes))
	for _, n := range sc.Nodes {
		agents[n] = strat.NewNode(net, n)
	}
	for _, l := range sc.Links {
		net.Link(l[0], l[1])
	}

	for _, ev := range sc.Events {
		at := ev.At
		net.schedule(at.Sub(net.Now()), func() {
			if ev.Up {
				net.Link(ev.A, ev.B)
			} else {
				net.Unlink(ev.A, ev.B)
			}
		})
	}

	net.Run(sc.Settle)

	rng := rand.New(rand.NewSource(sc.Seed))
	pick := sc.Pick
	if pick == nil {
		pick = randomPick
	}

	hopSamples := make([]float64, 0, sc.TotalRequests)
	delivered, failed := 0, 0
	for i := 0; i < sc.TotalRequests; i++ {
		src, dst := pick(rng, sc.Nodes)
		agent, ok := agents[src]
		if !ok {
			continue
		}
		agent.SendData(dst, func(ok bool, hops int) {
			if ok {
				delivered++
				hopSamples = append(hopSamples, float64(hops))
			} else {
				failed++
			}
		})
		net.Run(sc.RequestInterval)
	}
	net.Run(sc.Drain)
	net.FailAllPending()

	mean, p95 := summarizeHops(hopSamples)
	return Results{
		Strategy:  strat.Name(),
		Total:     sc.TotalRequests,
		Delivered: delivered,
		Failed:    failed,
		MeanHops:  mean,
		P95Hops:   p95,
	}
}

func randomPick(rng *rand.Rand, nodes []address.Address) (src, dst address.Address) {
	if len(nodes) < 2 {
		return address.Zero, address.Zero
	}
	i := rng.Intn(len(nodes))
	j := rng.Intn(len(nodes) - 1)
	if j >= i {
		j++
	}
	return nodes[i], nodes[j]
}

func summarizeHops(samples []float64) (mean, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	mean = sum / float64(len(samples))
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	idx := int(math.Ceil(0.95*float64(len(cp)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cp) {
		idx = len(cp) - 1
	}
	return mean, cp[idx]
}

// RunAll runs sc once per strategy and returns their results in order.
func RunAll(sc Scenario, strategies []Strategy) []Results {
	out := make([]Results, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, RunScenario(sc, s))
	}
	return out
}

// FormatResults renders a concise, human-readable summary for stdout.
func FormatResults(results []Results) string {
	s := ""
	for _, r := range results {
		pct := 0.0
		if r.Total > 0 {
			pct = 100.0 * float64(r.Delivered) / float64(r.Total)
		}
		s += fmt.Sprintf("%s: delivered=%d/%d (%.1f%%), mean_hops=%.2f p95_hops=%.0f\n",
			r.Strategy, r.Delivered, r.Total, pct, r.MeanHops, r.P95Hops)
	}
	return s
}
