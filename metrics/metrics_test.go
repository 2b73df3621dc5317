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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"anthocnet/address"
	"anthocnet/trace"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func TestAntDropIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)
	a := address.FromUint32(1)
	s.AntDrop("forward", trace.ReasonTTLExpired, a, 7)
	s.AntDrop("forward", trace.ReasonTTLExpired, a, 8)
	got := counterValue(t, s.antDrop.WithLabelValues("forward", string(trace.ReasonTTLExpired)))
	if got != 2 {
		t.Fatalf("expected counter value 2, got %v", got)
	}
}

func TestNeighborExpiredIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)
	s.NeighborExpired(address.FromUint32(2))
	if got := counterValue(t, s.nbExpired); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}
