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

// Package config loads and validates the tunables the routing core
// consumes. Loading is out of the core's scope by design (it is an external
// collaborator per the protocol's own design notes) but a runnable daemon
// still needs a concrete source, so this package reads TOML files.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so it can be written as a TOML string
// ("1s", "250ms") instead of a raw integer of nanoseconds. TOML has no
// native duration type, so Duration implements toml.Unmarshaler itself.
type Duration time.Duration

// UnmarshalTOML accepts either a duration string ("1500ms") or a bare
// number of seconds, the two shapes operators tend to reach for.
func (d *Duration) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("config: cannot decode %T into a duration", v)
	}
	return nil
}

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds every tunable the routing core reads. Field names mirror the
// option names the protocol recognizes.
type Config struct {
	// Timer intervals.
	HelloInterval Duration `toml:"hello_interval"`
	PrAntInterval Duration `toml:"pr_ant_interval"`

	// Lifecycle windows.
	NbExpire      Duration `toml:"nb_expire"`
	DstExpire     Duration `toml:"dst_expire"`
	SessionExpire Duration `toml:"session_expire"`
	DcacheExpire  Duration `toml:"dcache_expire"`
	NoBroadcast   Duration `toml:"no_broadcast"`

	// Pheromone update parameters.
	Alpha          float64 `toml:"alpha"`           // evaporation, (0,1)
	Gamma          float64 `toml:"gamma"`           // reinforcement smoothing, (0,1)
	AlphaPheromone float64 `toml:"alpha_pheromone"` // hop-count smoothing
	EtaValue       float64 `toml:"eta_value"`       // avr_T_send EMA

	THop         Duration `toml:"t_hop"`
	MinPheromone float64  `toml:"min_pheromone"`

	ConsBeta float64 `toml:"cons_beta"` // selection exponent, data forwarding
	ProgBeta float64 `toml:"prog_beta"` // selection exponent, forward discovery

	InitialTTL          int `toml:"initial_ttl"`
	ReactiveBcastCount  int `toml:"reactive_bcast_count"`
	ProactiveBcastCount int `toml:"proactive_bcast_count"`

	SNRCostMetric bool    `toml:"snr_cost_metric"`
	SNRThreshold  float64 `toml:"snr_threshold"`
	BadSNRCost    float64 `toml:"bad_snr_cost"`

	FuzzyMode       bool    `toml:"fuzzy_mode"`
	Blackhole       bool    `toml:"blackhole"`
	BlackholeAmount float64 `toml:"blackhole_amount"`

	// Bounds for the auxiliary data structures the core owns.
	SeenHistoryCapacity       int      `toml:"seen_history_capacity"`
	SeenHistoryTTL            Duration `toml:"seen_history_ttl"`
	PacketCacheCapacityPerDst int      `toml:"packet_cache_capacity_per_dst"`
	HelloDiffusionCount       int      `toml:"hello_diffusion_count"`

	// Send jitter bounds (spec: 0-10ms unicast, 0-30ms periodic broadcast).
	UnicastJitter   Duration `toml:"unicast_jitter"`
	BroadcastJitter Duration `toml:"broadcast_jitter"`

	ListenPort int    `toml:"listen_port"`
	LogLevel   string `toml:"log_level"`
}

// Default returns the numeric defaults named by the protocol's own design
// (hello_interval ~= 1s, beta=1 for discovery and beta=2 for data
// forwarding, UDP port 5555, etc).
func Default() Config {
	return Config{
		HelloInterval: Duration(time.Second),
		PrAntInterval: Duration(5 * time.Second),

		NbExpire:      Duration(3 * time.Second),
		DstExpire:     Duration(5 * time.Minute),
		SessionExpire: Duration(30 * time.Second),
		DcacheExpire:  Duration(5 * time.Second),
		NoBroadcast:   Duration(2 * time.Second),

		Alpha:          0.9,
		Gamma:          0.7,
		AlphaPheromone: 0.7,
		EtaValue:       0.7,

		THop:         Duration(10 * time.Millisecond),
		MinPheromone: 1e-6,

		ConsBeta: 2.0,
		ProgBeta: 1.0,

		InitialTTL:          32,
		ReactiveBcastCount:  2,
		ProactiveBcastCount: 1,

		SNRCostMetric: false,
		SNRThreshold:  10.0,
		BadSNRCost:    1.0,

		FuzzyMode:       false,
		Blackhole:       false,
		BlackholeAmount: 0,

		SeenHistoryCapacity:       4096,
		SeenHistoryTTL:            Duration(30 * time.Second),
		PacketCacheCapacityPerDst: 64,
		HelloDiffusionCount:       8,

		UnicastJitter:   Duration(10 * time.Millisecond),
		BroadcastJitter: Duration(30 * time.Millisecond),

		ListenPort: 5555,
		LogLevel:   "info",
	}
}

// Load reads a TOML configuration file, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants the protocol states on its tunables:
// alpha and gamma lie in (0,1), pheromones are non-negative thresholds, and
// the selection exponents are positive.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("config: alpha must be in (0,1), got %v", c.Alpha)
	}
	if c.Gamma <= 0 || c.Gamma >= 1 {
		return fmt.Errorf("config: gamma must be in (0,1), got %v", c.Gamma)
	}
	if c.AlphaPheromone <= 0 || c.AlphaPheromone >= 1 {
		return fmt.Errorf("config: alpha_pheromone must be in (0,1), got %v", c.AlphaPheromone)
	}
	if c.EtaValue <= 0 || c.EtaValue >= 1 {
		return fmt.Errorf("config: eta_value must be in (0,1), got %v", c.EtaValue)
	}
	if c.MinPheromone < 0 {
		return fmt.Errorf("config: min_pheromone must be >= 0, got %v", c.MinPheromone)
	}
	if c.ConsBeta <= 0 || c.ProgBeta <= 0 {
		return fmt.Errorf("config: cons_beta and prog_beta must be > 0")
	}
	if c.BlackholeAmount < 0 || c.BlackholeAmount > 1 {
		return fmt.Errorf("config: blackhole_amount must be in [0,1], got %v", c.BlackholeAmount)
	}
	if c.InitialTTL <= 0 {
		return fmt.Errorf("config: initial_ttl must be > 0")
	}
	return nil
}
