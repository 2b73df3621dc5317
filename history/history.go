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

// Package history deduplicates ants by (source, sequence number) so a given
// ant triggers at most one handler execution per node. The set is bounded
// both by capacity (LRU eviction) and by a TTL sweep, since capacity alone
// does not guarantee a coverage window long enough to span an ant's
// round-trip.
package history

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"anthocnet/address"
	"anthocnet/clock"
)

type seenKey struct {
	source address.Address
	seqno  uint64
}

// SeenHistory is a bounded, capacity- and TTL-evicted set of (source,
// seqno) pairs.
type SeenHistory struct {
	cache *lru.Cache[seenKey, int64] // value: unix nanos at insertion
	ttl   int64                      // nanoseconds; 0 disables the TTL sweep
	clk   clock.Clock
}

// New returns a SeenHistory capped at capacity entries, with entries older
// than ttl swept out whenever Sweep is called. capacity must be positive.
func New(capacity int, ttlNanos int64, clk clock.Clock) *SeenHistory {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[seenKey, int64](capacity)
	if err != nil {
		// lru.New only errors on a non-positive size, which we've already
		// guarded against above.
		panic(err)
	}
	return &SeenHistory{cache: c, ttl: ttlNanos, clk: clk}
}

// Seen reports whether (src, seqno) has already been recorded and is still
// within its TTL window.
func (h *SeenHistory) Seen(src address.Address, seqno uint64) bool {
	insertedAt, ok := h.cache.Get(seenKey{src, seqno})
	if !ok {
		return false
	}
	if h.ttl > 0 && h.clk.Now().UnixNano()-insertedAt > h.ttl {
		h.cache.Remove(seenKey{src, seqno})
		return false
	}
	return true
}

// Add records (src, seqno) as seen as of now.
func (h *SeenHistory) Add(src address.Address, seqno uint64) {
	h.cache.Add(seenKey{src, seqno}, h.clk.Now().UnixNano())
}

// Len returns the number of entries currently retained.
func (h *SeenHistory) Len() int {
	return h.cache.Len()
}

// Sweep removes every entry older than the configured TTL. It is driven by
// the neighbor-expiry tick rather than its own timer, since the core does
// not run timers beyond the three named in the protocol's timer loop.
func (h *SeenHistory) Sweep() {
	if h.ttl <= 0 {
		return
	}
	now := h.clk.Now().UnixNano()
	for _, k := range h.cache.Keys() {
		insertedAt, ok := h.cache.Peek(k)
		if ok && now-insertedAt > h.ttl {
			h.cache.Remove(k)
		}
	}
}
