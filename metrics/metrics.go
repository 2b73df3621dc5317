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

// Package metrics wires the core's trace.Sink to Prometheus counters, the
// same "count at the call site" style the katzenpost server's instrument
// package uses for its own dropped-packet and PKI-document counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"anthocnet/address"
	"anthocnet/trace"
)

// PrometheusSink implements trace.Sink by incrementing counters registered
// against a caller-supplied registry.
type PrometheusSink struct {
	antDrop      *prometheus.CounterVec
	dataDrop     *prometheus.CounterVec
	nbExpired    prometheus.Counter
	linkFailProp prometheus.Counter
	helloSent    *prometheus.CounterVec
	proactiveAnt prometheus.Counter
}

// NewPrometheusSink registers its counters against reg and returns a ready
// Sink. reg may be prometheus.NewRegistry() for an isolated test registry
// or prometheus.DefaultRegisterer for a process-wide one.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		antDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "ant_drop_total",
			Help:      "Ant packets dropped, by ant kind and reason.",
		}, []string{"kind", "reason"}),
		dataDrop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "data_drop_total",
			Help:      "User datagrams dropped, by reason.",
		}, []string{"reason"}),
		nbExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "neighbor_expired_total",
			Help:      "Neighbors removed after nb_expire elapsed without proof of life or after a MAC-layer TX error.",
		}),
		linkFailProp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "link_failure_propagated_total",
			Help:      "Destination updates propagated upstream in LinkFailureMsg responses to a received LinkFailureMsg.",
		}),
		helloSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "hello_sent_total",
			Help:      "HelloMsg broadcasts emitted, by interface.",
		}, []string{"iface"}),
		proactiveAnt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anthocnet",
			Name:      "proactive_ant_sent_total",
			Help:      "Proactive forward-ant broadcasts emitted.",
		}),
	}
	reg.MustRegister(s.antDrop, s.dataDrop, s.nbExpired, s.linkFailProp, s.helloSent, s.proactiveAnt)
	return s
}

var _ trace.Sink = (*PrometheusSink)(nil)

func (s *PrometheusSink) AntDrop(kind string, reason trace.AntDropReason, _ address.Address, _ uint64) {
	s.antDrop.WithLabelValues(kind, string(reason)).Inc()
}

func (s *PrometheusSink) DataDrop(_ address.Address, reason trace.DataDropReason) {
	s.dataDrop.WithLabelValues(string(reason)).Inc()
}

func (s *PrometheusSink) NeighborExpired(address.Address) {
	s.nbExpired.Inc()
}

func (s *PrometheusSink) LinkFailurePropagated(address.Address) {
	s.linkFailProp.Inc()
}

func (s *PrometheusSink) HelloSent(iface string) {
	s.helloSent.WithLabelValues(iface).Inc()
}

func (s *PrometheusSink) ProactiveAntSent(address.Address) {
	s.proactiveAnt.Inc()
}
