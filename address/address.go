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

// Package address defines the node identifier used throughout the routing
// core: an IPv4-sized opaque value, comparable and hashable so it can key
// the neighbor, destination and pheromone maps directly.
package address

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Address is a 4-byte node identifier. It is deliberately a value type (not
// a pointer or slice) so it can be used as a map key and compared with ==.
type Address [4]byte

// Zero is the reserved "no address" value.
var Zero Address

// FromIPv4 builds an Address from a net.IP, truncating/expanding to 4 bytes.
// It returns an error if ip is not a valid IPv4 address.
func FromIPv4(ip net.IP) (Address, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Zero, fmt.Errorf("address: %v is not an IPv4 address", ip)
	}
	var a Address
	copy(a[:], v4)
	return a, nil
}

// FromUint32 builds an Address from its big-endian uint32 representation.
func FromUint32(v uint32) Address {
	var a Address
	binary.BigEndian.PutUint32(a[:], v)
	return a
}

// Uint32 returns the big-endian uint32 representation of a.
func (a Address) Uint32() uint32 {
	return binary.BigEndian.Uint32(a[:])
}

// IP returns a as a net.IP.
func (a Address) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3])
}

// IsZero reports whether a is the reserved zero value.
func (a Address) IsZero() bool {
	return a == Zero
}

func (a Address) String() string {
	return a.IP().String()
}
