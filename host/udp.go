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

package host

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand"
	"net"
	"sync"
	"syscall"
	"time"

	"gopkg.in/op/go-logging.v1"

	"anthocnet/address"
)

var _ Host = (*UDPHost)(nil)

// Dispatcher is the callback a UDPHost delivers raw, framed datagrams to.
// iface names the interface the socket is bound on; from is the sender's
// IPv4 address, taken from the datagram's source address.
type Dispatcher func(iface string, from address.Address, b []byte)

// UDPHost implements Host over one real UDP socket per interface. Each
// interface is bound to ListenPort on the address assigned to it; ARP/MAC
// resolution for LookupIPv4ByMAC is backed by a caller-populated static
// table, since ad-hoc wireless interfaces rarely expose a kernel ARP cache
// worth trusting for this lookup.
type UDPHost struct {
	mu       sync.RWMutex
	conns    map[string]*net.UDPConn
	ifaceIPs map[string]address.Address
	macTable map[string][]address.Address
	port     int
	dispatch Dispatcher
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	rngMu sync.Mutex
	rng   *mrand.Rand
}

// NewUDPHost returns a host bound to the given interface names (each
// resolved to its first IPv4 address) on port. dispatch is invoked from the
// receive goroutine for every well-formed inbound datagram.
func NewUDPHost(ifaceNames []string, port int, dispatch Dispatcher, log *logging.Logger) (*UDPHost, error) {
	h := &UDPHost{
		conns:    make(map[string]*net.UDPConn),
		ifaceIPs: make(map[string]address.Address),
		macTable: make(map[string][]address.Address),
		port:     port,
		dispatch: dispatch,
		log:      log,
		rng:      mrand.New(mrand.NewSource(cryptoSeed())),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	for _, name := range ifaceNames {
		ip, err := firstIPv4(name)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("host: resolving %s: %w", name, err)
		}
		addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", ip.String(), port))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("host: resolving bind addr for %s: %w", name, err)
		}
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("host: listening on %s: %w", name, err)
		}
		a, err := address.FromIPv4(ip)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("host: %s has no usable IPv4 address: %w", name, err)
		}
		h.conns[name] = conn
		h.ifaceIPs[name] = a

		h.wg.Add(1)
		go h.receiveLoop(name, conn)
	}
	return h, nil
}

func firstIPv4(name string) (net.IP, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address on %s", name)
}

func (h *UDPHost) receiveLoop(iface string, conn *net.UDPConn) {
	defer h.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if h.ctx.Err() != nil {
				return
			}
			h.logf("read on %s: %v", iface, err)
			continue
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		from, ferr := address.FromIPv4(src.IP)
		if ferr != nil {
			continue
		}
		if h.dispatch != nil {
			h.dispatch(iface, from, out)
		}
	}
}

// Send unicasts b to to's IPv4 address over iface. address.Zero is the
// broadcast sentinel: it resolves to the limited broadcast address
// 255.255.255.255.
func (h *UDPHost) Send(iface string, to address.Address, b []byte) error {
	h.mu.RLock()
	conn, ok := h.conns[iface]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("host: unknown interface %q", iface)
	}

	dest := to.IP()
	if to.IsZero() {
		dest = net.IPv4bcast
	}
	addr := &net.UDPAddr{IP: dest, Port: h.port}
	_, err := conn.WriteToUDP(b, addr)
	if err != nil {
		// A down interface is a silent no-op per the protocol's error model;
		// only report conditions the caller can act on.
		if errors.Is(err, syscall.ENETDOWN) {
			return nil
		}
		if opErr, ok := err.(*net.OpError); ok && opErr.Temporary() {
			return nil
		}
	}
	return err
}

// ScheduleAfter runs fn once, after d, on its own goroutine.
func (h *UDPHost) ScheduleAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Now returns the real wall clock.
func (h *UDPHost) Now() time.Time { return time.Now() }

// RandUniformF64 draws uniformly from [0,1). The underlying source is
// seeded once from crypto/rand at construction rather than left at
// math/rand's default seed, then reused under a mutex; jitter timing
// doesn't need cryptographic randomness per draw, just a source that
// isn't the same sequence across every process run.
func (h *UDPHost) RandUniformF64() float64 {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return h.rng.Float64()
}

// RandUniformInt draws uniformly from [lo,hi).
func (h *UDPHost) RandUniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return lo + h.rng.Intn(hi-lo)
}

func cryptoSeed() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return time.Now().UnixNano()
	}
	return n.Int64()
}

// SetMACTable installs the static MAC-to-address table LookupIPv4ByMAC
// consults. Populated from the platform's own ARP/neighbor table by the
// daemon's startup code, outside this package's scope.
func (h *UDPHost) SetMACTable(t map[string][]address.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.macTable = t
}

// LookupIPv4ByMAC resolves a MAC-layer TX-error report to candidate
// addresses.
func (h *UDPHost) LookupIPv4ByMAC(mac string) []address.Address {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.macTable[mac]
}

// Interfaces lists the interface names this host is bound on.
func (h *UDPHost) Interfaces() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns))
	for name := range h.conns {
		out = append(out, name)
	}
	return out
}

// Close tears down every bound socket and waits for receive loops to exit.
func (h *UDPHost) Close() {
	h.cancel()
	h.mu.Lock()
	for _, conn := range h.conns {
		conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *UDPHost) logf(format string, args ...interface{}) {
	if h.log == nil {
		return
	}
	h.log.Warningf(format, args...)
}
