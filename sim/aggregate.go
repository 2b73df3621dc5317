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
)

// MultiSeedAggregation holds per-strategy aggregated metrics across seeds.
type MultiSeedAggregation struct {
	Strategy          string
	DeliveredPct      []float64
	MeanHopsSamples   []float64
	MeanDeliveredPct  float64
	StdDeliveredPct   float64
	MeanHops          float64
	StdHops           float64
}

// AggregateMultiSeed runs sc across seeds for every strategy and aggregates
// delivery rate and mean hop count.
func AggregateMultiSeed(sc Scenario, strategies []Strategy, seeds []int64) []MultiSeedAggregation {
	agg := make(map[string]*MultiSeedAggregation)
	order := make([]string, 0, len(strategies))
	for _, seed := range seeds {
		sc.Seed = seed
		for _, r := range RunAll(sc, strategies) {
			a, ok := agg[r.Strategy]
			if !ok {
				a = &MultiSeedAggregation{Strategy: r.Strategy}
				agg[r.Strategy] = a
				order = append(order, r.Strategy)
			}
			pct := 0.0
			if r.Total > 0 {
				pct = 100.0 * float64(r.Delivered) / float64(r.Total)
			}
			a.DeliveredPct = append(a.DeliveredPct, pct)
			a.MeanHopsSamples = append(a.MeanHopsSamples, r.MeanHops)
		}
	}

	out := make([]MultiSeedAggregation, 0, len(order))
	for _, name := range order {
		a := agg[name]
		a.MeanDeliveredPct, a.StdDeliveredPct = meanStd(a.DeliveredPct)
		a.MeanHops, a.StdHops = meanStd(a.MeanHopsSamples)
		out = append(out, *a)
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	mean = s / float64(len(xs))
	if len(xs) == 1 {
		return mean, 0
	}
	varSum := 0.0
	for _, v := range xs {
		d := v - mean
		varSum += d * d
	}
	std = math.Sqrt(varSum / float64(len(xs)))
	return
}

// FormatAggregatedResults renders mean±stddev per strategy.
func FormatAggregatedResults(aggs []MultiSeedAggregation) string {
	s := ""
	for _, a := range aggs {
		s += fmt.Sprintf("%s: delivered=%.2f%% ± %.2f, mean_hops=%.2f ± %.2f\n",
			a.Strategy, a.MeanDeliveredPct, a.StdDeliveredPct, a.MeanHops, a.StdHops)
	}
	return s
}
