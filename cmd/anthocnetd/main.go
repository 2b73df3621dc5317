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

// Command anthocnetd runs one node's routing core over real UDP sockets,
// bound to the interfaces named on the command line.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"

	"anthocnet/address"
	"anthocnet/config"
	"anthocnet/facade"
	"anthocnet/host"
	"anthocnet/metrics"
)

var log = logging.MustGetLogger("anthocnetd")

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file (defaults built in otherwise)")
		ifaceList  = flag.String("ifaces", "", "comma-separated list of interfaces to bind (required)")
		selfAddr   = flag.String("self", "", "this node's address, dotted-quad form (required)")
		metricsBind = flag.String("metrics", ":9555", "address to serve Prometheus metrics on")
	)
	flag.Parse()

	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetBackend(backend)

	if *ifaceList == "" || *selfAddr == "" {
		log.Fatal("anthocnetd: -ifaces and -self are required")
	}
	ifaces := strings.Split(*ifaceList, ",")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("anthocnetd: %v", err)
		}
		cfg = loaded
	}
	logging.SetLevel(levelFor(cfg.LogLevel), "anthocnetd")

	ip := net.ParseIP(*selfAddr)
	if ip == nil {
		log.Fatalf("anthocnetd: invalid -self address %q", *selfAddr)
	}
	self, err := address.FromIPv4(ip)
	if err != nil {
		log.Fatalf("anthocnetd: %v", err)
	}

	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	var pf *facade.ProtocolFacade
	h, err := host.NewUDPHost(ifaces, cfg.ListenPort, func(iface string, from address.Address, b []byte) {
		pf.Recv(iface, from, b)
	}, log)
	if err != nil {
		log.Fatalf("anthocnetd: %v", err)
	}
	defer h.Close()

	pf = facade.New(cfg, self, h, sink, uint16(cfg.ListenPort))

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Infof("anthocnetd: node %s listening on %v, metrics on %s", self, ifaces, *metricsBind)
	log.Fatal(http.ListenAndServe(*metricsBind, nil))
}

func levelFor(name string) logging.Level {
	lvl, err := logging.LogLevel(name)
	if err != nil {
		return logging.INFO
	}
	return lvl
}
