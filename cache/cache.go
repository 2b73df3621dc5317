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

// Package cache buffers user datagrams per destination while a forward-ant
// is out discovering a route. Entries are bounded per destination (oldest
// dropped on overflow) and expire after dcache_expire.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"anthocnet/address"
	"anthocnet/clock"
)

// UnicastForwardFunc delivers a cached datagram once a route has been
// found, mirroring the host's unicast_forward callback.
type UnicastForwardFunc func(gateway address.Address, pkt, hdr []byte)

// ErrorFunc reports that a cached datagram could not be delivered.
type ErrorFunc func(pkt, hdr []byte, reason string)

// Entry is one buffered datagram.
type Entry struct {
	Packet     []byte
	Header     []byte
	InIface    string
	Forward    UnicastForwardFunc
	OnError    ErrorFunc
	EnqueuedAt int64 // unix nanos
}

// PacketCache buffers Entry values keyed by destination address.
type PacketCache struct {
	queues       map[address.Address]*lru.Cache[int, Entry]
	capacityPerD int
	expireNanos  int64
	clk          clock.Clock
	seq          map[address.Address]int
}

// New returns a PacketCache that retains at most capacityPerDst entries per
// destination and reports entries older than expire as stale when popped.
func New(capacityPerDst int, expire int64, clk clock.Clock) *PacketCache {
	if capacityPerDst <= 0 {
		capacityPerDst = 1
	}
	return &PacketCache{
		queues:       make(map[address.Address]*lru.Cache[int, Entry]),
		capacityPerD: capacityPerDst,
		expireNanos:  expire,
		clk:          clk,
		seq:          make(map[address.Address]int),
	}
}

// Cache appends e to dst's queue, dropping the oldest entry on overflow.
func (c *PacketCache) Cache(dst address.Address, e Entry) {
	q, ok := c.queues[dst]
	if !ok {
		var err error
		q, err = lru.New[int, Entry](c.capacityPerD)
		if err != nil {
			panic(err)
		}
		c.queues[dst] = q
	}
	e.EnqueuedAt = c.clk.Now().UnixNano()
	n := c.seq[dst]
	c.seq[dst] = n + 1
	q.Add(n, e)
}

// HasEntries reports whether dst has any buffered datagrams.
func (c *PacketCache) HasEntries(dst address.Address) bool {
	q, ok := c.queues[dst]
	return ok && q.Len() > 0
}

// PopEntry removes and returns the oldest buffered entry for dst. isFresh
// is false if the entry had already exceeded dcache_expire when popped;
// callers should treat a stale entry as a drop, not a delivery.
func (c *PacketCache) PopEntry(dst address.Address) (isFresh bool, e Entry, ok bool) {
	q, exists := c.queues[dst]
	if !exists || q.Len() == 0 {
		return false, Entry{}, false
	}
	keys := q.Keys()
	oldestKey := keys[0]
	entry, found := q.Peek(oldestKey)
	if !found {
		return false, Entry{}, false
	}
	q.Remove(oldestKey)
	fresh := c.expireNanos <= 0 || c.clk.Now().UnixNano()-entry.EnqueuedAt <= c.expireNanos
	return fresh, entry, true
}

// Remove drops every buffered datagram for dst.
func (c *PacketCache) Remove(dst address.Address) {
	delete(c.queues, dst)
	delete(c.seq, dst)
}

// Len returns the number of buffered datagrams for dst.
func (c *PacketCache) Len(dst address.Address) int {
	q, ok := c.queues[dst]
	if !ok {
		return 0
	}
	return q.Len()
}
