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

	"github.com/fxamacker/cbor/v2"

	"anthocnet/address"
)

// ErrNoRoute names the condition of a strategy having no way to move a
// datagram any closer to its destination. Request callbacks carry no error
// value; such a request is reported with delivered=false.
var ErrNoRoute = fmt.Errorf("sim: no route to destination")

// Strategy builds one NodeAgent per simulated node. AntHocNetStrategy wraps
// a full facade.ProtocolFacade per node; FloodStrategy rebroadcasts once
// per unique request with no pheromone table, the baseline AntHocNet's
// scenarios are implicitly measured against.
type Strategy interface {
	Name() string
	NewNode(net *Network, self address.Address) NodeAgent
}

// NodeAgent is one node's participation in a Strategy. SendData originates
// a datagram toward dst; done fires exactly once, reporting whether it
// arrived and, if so, how many hops it took.
type NodeAgent interface {
	SendData(dst address.Address, done func(delivered bool, hops int))
}

// dataEnvelope is the simulator's own data-plane wire format: a minimal
// stand-in for the IP datagrams a real ProtocolFacade would be handed by
// the kernel. byte 0 is always 0x00, which can never collide with
// wire.TypeHeader's control-message range (which starts at 1), so a node's
// single Recv callback can cheaply tell data and control packets apart.
type dataEnvelope struct {
	Origin address.Address `cbor:"1,keyasint"`
	Dest   address.Address `cbor:"2,keyasint"`
	ReqID  uint64          `cbor:"3,keyasint"`
	Hops   int             `cbor:"4,keyasint"`
}

const dataMarker = 0x00

func encodeData(e dataEnvelope) []byte {
	body, err := cbor.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("sim: encoding data envelope: %v", err))
	}
	return append([]byte{dataMarker}, body...)
}

func decodeData(b []byte) (dataEnvelope, bool) {
	var e dataEnvelope
	if len(b) == 0 || b[0] != dataMarker {
		return e, false
	}
	if err := cbor.Unmarshal(b[1:], &e); err != nil {
		return e, false
	}
	return e, true
}
